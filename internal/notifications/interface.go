package notifications

import "github.com/citelens/citelens/internal/models"

// NotificationInterface defines the contract for report delivery
type NotificationInterface interface {
	SendReport(report *models.Report) error
}
