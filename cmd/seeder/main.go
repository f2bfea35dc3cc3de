package main

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/nexhub/outreach-backend/internal/config"
	"github.com/nexhub/outreach-backend/internal/db"
	"github.com/nexhub/outreach-backend/internal/model"
	"github.com/nexhub/outreach-backend/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database:", err)
	}
	defer conn.Close()

	ctx := context.Background()
	userID := uuid.New()

	contactRepo := &repository.ContactRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}

	contacts := []*model.Contact{
		{UserID: userID, Email: "alice@example.com", FirstName: "Alice", LastName: "Mwangi", Company: "Acme", Role: "CTO", Source: model.SourceManual, Tags: []string{"priority"}},
		{UserID: userID, Email: "bob@example.com", FirstName: "Bob", LastName: "Otieno", Company: "Globex", Role: "Engineer", Source: model.SourceManual, Tags: []string{}},
		{UserID: userID, Email: "carol@example.com", FirstName: "Carol", LastName: "Njeri", Company: "Initech", Role: "VP Sales", Source: model.SourceImported, Tags: []string{"warm"}},
	}
	for _, c := range contacts {
		if err := contactRepo.Create(ctx, c); err != nil {
			log.Println("seed contact:", err)
			continue
		}
		log.Println("seeded contact", c.Email)
	}

	campaign := &model.Campaign{
		UserID: userID,
		Name:   "Q3 product intro",
		Status: model.CampaignDraft,
	}
	if err := campaignRepo.Create(ctx, campaign); err != nil {
		log.Fatal("seed campaign:", err)
	}
	log.Println("seeded campaign", campaign.ID, "for user", userID)
}
