package app

import (
	"gorm.io/gorm"

	"github.com/GOGOSCHNO/assistantai1/internal/data/repos/conversation"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

type Repos struct {
	Threads  conversation.ThreadRepo
	Turns    conversation.TurnRepo
	Images   conversation.ImageAssetRepo
	Bookings conversation.BookingRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Threads:  conversation.NewThreadRepo(db, log),
		Turns:    conversation.NewTurnRepo(db, log),
		Images:   conversation.NewImageAssetRepo(db, log),
		Bookings: conversation.NewBookingRepo(db, log),
	}
}
