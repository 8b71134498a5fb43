package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInstallmentsOverdue marks pending installments past their due date.
	TaskInstallmentsOverdue = "installments:mark_overdue"
)
