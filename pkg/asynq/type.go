package asynq

const (
	SchedulerTickTask = "contribution:scheduler_tick"
)

// SchedulerTickPayload carries nothing beyond a manual trigger marker; the
// handler always operates on the single durable scheduler cursor.
type SchedulerTickPayload struct {
	Manual bool
}
