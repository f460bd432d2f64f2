package validationx

import (
	"github.com/ARUMANDESU/validation"
	"github.com/ARUMANDESU/validation/is"
)

var (
	EmailRules = []validation.Rule{
		validation.Required,
		is.EmailFormat,
		validation.Length(5, 255),
	}

	ClientIDRules = []validation.Rule{
		validation.Required,
		validation.Length(1, 255),
		ClientIDFormat,
	}

	RedirectURIRules = []validation.Rule{
		validation.Required,
		validation.Length(1, 2048),
		AbsoluteURL,
	}
)
