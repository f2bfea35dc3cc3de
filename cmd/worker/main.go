package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexhub/outreach-backend/internal/config"
	"github.com/nexhub/outreach-backend/internal/db"
	"github.com/nexhub/outreach-backend/internal/provider"
	"github.com/nexhub/outreach-backend/internal/queue"
	"github.com/nexhub/outreach-backend/internal/ratelimit"
	"github.com/nexhub/outreach-backend/internal/repository"
	"github.com/nexhub/outreach-backend/internal/service"
)

const activationPollInterval = 30 * time.Second

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

	limiter, err := ratelimit.NewFromURL(cfg.RedisURL, cfg.RateWindow, cfg.RateCeiling)
	if err != nil {
		log.Fatal("rate limiter:", err)
	}
	defer limiter.Close()

	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal("broker:", err)
	}
	defer amqpQueue.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}

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

	automation := &service.AutomationService{
		CampaignRepo: campaignRepo,
		MessageRepo:  messageRepo,
		ContactRepo:  contactRepo,
		Queue:        amqpQueue,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down")
		cancel()
	}()

	// Promote scheduled campaigns whose start date has arrived.
	go func() {
		ticker := time.NewTicker(activationPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				activated, err := automation.ActivateDueCampaigns(ctx, 50)
				if err != nil {
					log.Println("activation pass:", err)
					continue
				}
				if activated > 0 {
					log.Printf("activated %d campaigns", activated)
				}
			}
		}
	}()

	log.Println("worker running, waiting for dispatch jobs")
	err = amqpQueue.Consume(func(job queue.DispatchJob) error {
		// Each job drains one campaign on its own goroutine, so one
		// campaign's backoff never blocks another's batches.
		summary, err := dispatcher.DispatchCampaign(ctx, job.UserID, job.CampaignID)
		if summary != nil {
			log.Printf("campaign %s: %d processed, %d sent, %d failed, %d bounced",
				job.CampaignID, summary.Processed, summary.Succeeded, summary.Failed, summary.Bounced)
		}
		return err
	}, cfg.DispatchConcurrency, 3)
	if err != nil {
		log.Fatal("consume:", err)
	}
}
