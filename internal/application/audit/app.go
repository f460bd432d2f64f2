package audit

import (
	auditevent "gitlab.com/ucmsv2/idbroker/internal/application/audit/event"
)

type App struct {
	Event *auditevent.AuditEventHandler
}

type Args = auditevent.AuditEventHandlerArgs

func NewApp(args Args) (*App, error) {
	h, err := auditevent.NewAuditEventHandler(args)
	if err != nil {
		return nil, err
	}
	return &App{Event: h}, nil
}
