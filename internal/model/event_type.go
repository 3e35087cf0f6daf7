package model

import (
	"fmt"
	"strconv"
	"strings"
)

// EventType is the on-chain job event tag.
type EventType uint8

const (
	EventCreated EventType = iota
	EventTaken
	EventPaid
	EventUpdated
	EventSigned
	EventCompleted
	EventDelivered
	EventClosed
	EventReopened
	EventRated
	EventRefunded
	EventDisputed
	EventArbitrated
	EventArbitrationRefused
	EventWhitelistedWorkerAdded
	EventWhitelistedWorkerRemoved
	EventCollateralWithdrawn
	EventWorkerMessage
	EventOwnerMessage
)

var eventTypeNames = [...]string{
	EventCreated:                  "Created",
	EventTaken:                    "Taken",
	EventPaid:                     "Paid",
	EventUpdated:                  "Updated",
	EventSigned:                   "Signed",
	EventCompleted:                "Completed",
	EventDelivered:                "Delivered",
	EventClosed:                   "Closed",
	EventReopened:                 "Reopened",
	EventRated:                    "Rated",
	EventRefunded:                 "Refunded",
	EventDisputed:                 "Disputed",
	EventArbitrated:               "Arbitrated",
	EventArbitrationRefused:       "ArbitrationRefused",
	EventWhitelistedWorkerAdded:   "WhitelistedWorkerAdded",
	EventWhitelistedWorkerRemoved: "WhitelistedWorkerRemoved",
	EventCollateralWithdrawn:      "CollateralWithdrawn",
	EventWorkerMessage:            "WorkerMessage",
	EventOwnerMessage:             "OwnerMessage",
}

// Known reports whether the tag belongs to the known enumeration.
func (t EventType) Known() bool {
	return int(t) < len(eventTypeNames)
}

func (t EventType) String() string {
	if !t.Known() {
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
	return eventTypeNames[t]
}

// EventTypes returns every known tag in numeric order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypeNames))
	for i := range eventTypeNames {
		out = append(out, EventType(i))
	}
	return out
}

// ParseEventType accepts a tag name (case-insensitive) or its numeric value.
func ParseEventType(input string) (EventType, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, fmt.Errorf("empty event type")
	}
	if n, err := strconv.ParseUint(input, 10, 8); err == nil {
		return EventType(n), nil
	}
	for i, name := range eventTypeNames {
		if strings.EqualFold(name, input) {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type: %s", input)
}
