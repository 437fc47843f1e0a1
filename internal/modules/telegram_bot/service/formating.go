package service

import (
	"fmt"

	"signal_exec/internal/models"
)

const helpText = "Команды:\n/stats — джобы по статусам"

func formatStats(counts map[models.JobStatus]int) string {
	return fmt.Sprintf(
		"📊 Джобы\n\n"+
			"pending: %d\n"+
			"claimed: %d\n"+
			"completed: %d\n"+
			"failed: %d",
		counts[models.JobPending],
		counts[models.JobClaimed],
		counts[models.JobCompleted],
		counts[models.JobFailed],
	)
}
