package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateNotification OutboxAggregateType = "notification"
	AggregatePack         OutboxAggregateType = "pack"
)

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventPackClaimed           OutboxEventType = "pack_claimed"
)

// eventAggregates pins each event type to the one aggregate it is emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventNotificationRequested: AggregateNotification,
	EventPackClaimed:           AggregatePack,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func (a OutboxAggregateType) IsValid() bool {
	for _, agg := range eventAggregates {
		if agg == a {
			return true
		}
	}
	return false
}
