package services

import (
	"fmt"
	"sync"
	"time"
)

var (
	bogotaOnce sync.Once
	bogotaLoc  *time.Location
)

func bogota() *time.Location {
	bogotaOnce.Do(func() {
		loc, err := time.LoadLocation("America/Bogota")
		if err != nil {
			loc = time.UTC
		}
		bogotaLoc = loc
	})
	return bogotaLoc
}

// BuildTurnPrompt wraps the (possibly batched) user message with the sender's
// number and a local timestamp before submission to the assistant.
func BuildTurnPrompt(message string, conversationID string, at time.Time) string {
	stamp := at.In(bogota()).Format("2/1/2006, 15:04:05")
	return fmt.Sprintf("Mensaje del cliente: %q. Nota: El número WhatsApp del cliente es %s. Fecha y hora del mensaje: %s",
		message, conversationID, stamp)
}
