package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexhub/outreach-backend/internal/config"
	"github.com/nexhub/outreach-backend/internal/crm"
	"github.com/nexhub/outreach-backend/internal/db"
	"github.com/nexhub/outreach-backend/internal/handler"
	"github.com/nexhub/outreach-backend/internal/provider"
	"github.com/nexhub/outreach-backend/internal/queue"
	"github.com/nexhub/outreach-backend/internal/ratelimit"
	"github.com/nexhub/outreach-backend/internal/repository"
	"github.com/nexhub/outreach-backend/internal/service"
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
	log.Println("connected to database")

	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}

	var q queue.Queue
	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		// Without a broker there is no worker process, so drain campaigns
		// in this process: dispatch jobs go to an in-memory queue with a
		// dispatcher subscribed to it.
		log.Println("broker unavailable, running dispatch in-process:", err)

		limiter, lerr := ratelimit.NewFromURL(cfg.RedisURL, cfg.RateWindow, cfg.RateCeiling)
		if lerr != nil {
			log.Fatal("rate limiter:", lerr)
		}
		defer limiter.Close()

		var delivery provider.DeliveryProvider
		if cfg.Provider == "smtp" {
			delivery = provider.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		} else {
			delivery = provider.NewHTTPProvider(cfg.ProviderURL, cfg.ProviderKey)
		}

		dispatcher := &service.Dispatcher{
			CampaignRepo:    campaignRepo,
			MessageRepo:     messageRepo,
			ContactRepo:     contactRepo,
			Provider:        delivery,
			Limiter:         limiter,
			FromAddress:     cfg.FromAddress,
			BatchSize:       cfg.DispatchBatchSize,
			InterBatchDelay: cfg.InterBatchDelay,
			SendMaxAttempts: cfg.SendMaxAttempts,
			SendBaseDelay:   cfg.SendBaseDelay,
		}

		memQueue := queue.NewInMemoryQueue()
		memQueue.Subscribe(func(job queue.DispatchJob) error {
			// The drain runs on its own goroutine so the publishing request
			// does not wait for it.
			go func() {
				summary, derr := dispatcher.DispatchCampaign(context.Background(), job.UserID, job.CampaignID)
				if summary != nil {
					log.Printf("campaign %s: %d processed, %d sent, %d failed, %d bounced",
						job.CampaignID, summary.Processed, summary.Succeeded, summary.Failed, summary.Bounced)
				}
				if derr != nil {
					log.Printf("in-process dispatch for campaign %s: %v", job.CampaignID, derr)
				}
			}()
			return nil
		})
		q = memQueue
	} else {
		defer amqpQueue.Close()
		q = amqpQueue
	}

	automation := &service.AutomationService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		ContactRepo:  contactRepo,
		Queue:        q,
	}
	syncService := &service.SyncService{ContactRepo: contactRepo}

	automationHandler := &handler.AutomationHandler{Service: automation}
	syncHandler := &handler.SyncHandler{
		Service: syncService,
		Sources: map[string]crm.ContactSource{
			"sheets":      crm.NewHTTPSource("sheets", "https://sheets-bridge.internal/api"),
			"addressbook": crm.NewHTTPSource("addressbook", "https://addressbook.internal/api"),
		},
	}

	r := chi.NewRouter()

	r.Post("/campaigns/{id}/schedule", automationHandler.ScheduleCampaign)
	r.Post("/campaigns/{id}/pause", automationHandler.PauseAutomation)
	r.Post("/campaigns/{id}/resume", automationHandler.ResumeAutomation)
	r.Post("/campaigns/{id}/messages", automationHandler.EnqueueInitialSend)
	r.Post("/campaigns/{id}/follow-ups", automationHandler.StartFollowUpSequence)
	r.Get("/campaigns/{id}/automation", automationHandler.GetAutomationStatus)
	r.Get("/campaigns/{id}/queue", automationHandler.GetExecutionQueue)

	r.Post("/contacts/sync", syncHandler.SyncContacts)
	r.Post("/contacts/cleanup-duplicates", syncHandler.CleanupDuplicates)

	log.Println("server listening on", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, r))
}
