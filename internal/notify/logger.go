package notify

import (
	"log"

	"github.com/chimeapp/chime/internal/engine"
)

// Log writes deliveries to the process log. Used for headless runs without
// a Telegram token.
type Log struct{}

func (Log) Deliver(id int32, title, message string, p engine.Payload) error {
	log.Printf("Reminder fired: id=%d reminder=%s offset=%dms title=%q", id, p.ReminderID, p.OffsetMs, title)
	return nil
}
