// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// LogChannel writes notices to the application log. Failures and
// ambiguous outcomes log at warn so they stand out.
type LogChannel struct {
	logger *logrus.Entry
}

// NewLogChannel creates a log channel
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: utils.Component("notice")}
}

func (lc *LogChannel) Name() string {
	return string(models.NotificationTypeLog)
}

func (lc *LogChannel) Send(ctx context.Context, notice *models.Notice) error {
	entry := lc.logger.WithFields(logrus.Fields{
		"notice_id": notice.ID,
		"kind":      notice.Kind,
		"action":    notice.Action,
	})
	if notice.TxHash != "" {
		entry = entry.WithField("tx_hash", notice.TxHash)
	}
	for k, v := range notice.Data {
		entry = entry.WithField(k, v)
	}

	msg := notice.Title
	if notice.Message != "" {
		msg += ": " + notice.Message
	}

	switch notice.Kind {
	case models.NoticeFailure, models.NoticeAmbiguous:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	return nil
}
