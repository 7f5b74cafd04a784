package alerts

import (
	"context"
	"errors"
	"sync"
)

const (
	DefaultSubject   = "LBIS Notification"
	DefaultQueueSize = 32
)

var ErrNoServices = errors.New("no notification services are configured")

type (
	// Sender delivers one message. *notify.Notify satisfies it.
	Sender interface {
		Send(ctx context.Context, subject, message string) error
	}

	NotificationTask struct {
		Message string
	}

	Config struct {
		DiscordBotToken  string
		DiscordChannelID string

		TwilioAccountSID string
		TwilioAuthToken  string
		TwilioFromPhone  string
		TwilioToPhone    string
	}

	// Alerts queues notifications and delivers them from one goroutine so a
	// slow service never blocks the caller.
	Alerts struct {
		wg      sync.WaitGroup
		ctx     context.Context
		cancel  context.CancelFunc
		sender  Sender
		subject string

		NotifyCh chan NotificationTask
	}
)
