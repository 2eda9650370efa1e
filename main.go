package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/slotwise/studio-backend/database"
	"github.com/slotwise/studio-backend/internal/config"
	"github.com/slotwise/studio-backend/internal/handlers"
	"github.com/slotwise/studio-backend/internal/jobs"
	"github.com/slotwise/studio-backend/internal/models"
	"github.com/slotwise/studio-backend/internal/routes"
	"github.com/slotwise/studio-backend/internal/services"
	"github.com/slotwise/studio-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}

	cfg := config.Load()

	// Initialize storage
	var store storage.Store
	var db *gorm.DB

	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		var err error
		db, err = database.Connect(cfg)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		log.Println("🔄 Running database migrations...")
		err = db.AutoMigrate(
			&models.Booking{},
			&models.NotificationTask{},
			&models.TimetableEntry{},
			&models.SessionSnapshot{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(db)
		log.Println("✅ Using PostgreSQL database storage")
	}

	seedTimetable(store)

	// Outbound channel: real Twilio when configured, log-only otherwise.
	var channel services.NotificationChannel
	twilioService, err := services.NewTwilioService()
	if err != nil {
		log.Printf("⚠️  Twilio service not initialized: %v", err)
		channel = services.LogChannel{}
	} else {
		log.Println("✅ Twilio service initialized")
		channel = twilioService
	}

	// Session snapshots: Redis when configured, the database when one is
	// connected, in-process otherwise.
	var sessionStore services.SessionStore
	switch {
	case cfg.RedisURL != "":
		redisStore, err := services.NewRedisSessionStore(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		sessionStore = redisStore
		log.Println("✅ Redis session store connected")
	case db != nil:
		sessionStore = services.NewDatabaseSessionStore(db)
		log.Println("✅ Database session store ready")
	default:
		sessionStore = services.NewMemorySessionStore()
		log.Println("⚠️  Using in-memory session snapshots")
	}

	// Initialize all services
	templates := services.NewTemplateService(os.Getenv("STUDIO_NAME"))
	parser := services.NewTimeParser(cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
	calendar := services.NewStoreCalendar(store)
	availability := services.NewAvailabilityIndex(calendar, cfg.AvailabilityCacheTTL)
	resolver := services.NewBookingResolver(store, availability, templates,
		cfg.DefaultTimezone, cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
	sessionManager := services.NewSessionManager(sessionStore, cfg.SessionTTL)
	extractor := services.NewIntentExtractor()
	dialogue := services.NewDialogueEngine(sessionManager, extractor, parser, resolver,
		availability, templates, cfg.DefaultTimezone, cfg.MaxClarifyAttempts, cfg.MaxQueuedIntents)
	dispatcher := services.NewConfirmationDispatcher(store, channel,
		cfg.NotifyMaxAttempts, cfg.NotifyBaseDelay, cfg.NotifyMaxDelay)

	// Initialize and start notification jobs
	notificationJob := jobs.NewNotificationJob(store, dispatcher, templates, 0)
	notificationJob.Start()

	log.Println("✅ All services initialized and scheduled jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "SlotWise Studio Backend v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Setup routes
	healthHandler := handlers.NewHealthHandler(version, sessionManager)
	whatsappHandler := handlers.NewWhatsAppHandler(dialogue, channel)
	bookingHandler := handlers.NewBookingHandler(resolver, availability, parser, cfg.DefaultTimezone)
	routes.SetupRoutes(app, healthHandler, whatsappHandler, bookingHandler)

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping notification jobs...")
		notificationJob.Stop()
		sessionManager.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	// Start server
	log.Println("========================================")
	log.Printf("🚀 SlotWise Studio Backend starting on port %s", cfg.Port)
	log.Printf("📊 Storage: %s", storageType(cfg))
	log.Printf("🕘 Business hours: %d:00-%d:00 (%s)",
		cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.DefaultTimezone)
	log.Printf("📱 WhatsApp: %s", whatsappStatus(cfg.TwilioAccountSID))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + cfg.Port))
}

// seedTimetable loads the default weekly schedule on first boot so a fresh
// install has something to book.
func seedTimetable(store storage.Store) {
	count, err := store.CountTimetableEntries()
	if err != nil || count > 0 {
		return
	}

	entries := []*models.TimetableEntry{
		{Weekday: 1, StartTime: "09:00", Instructor: "Maria", ClassType: "Yoga"},
		{Weekday: 1, StartTime: "10:00", Instructor: "Carlos", ClassType: "HIIT"},
		{Weekday: 1, StartTime: "15:00", Instructor: "Maria", ClassType: "Pilates"},
		{Weekday: 2, StartTime: "09:00", Instructor: "Carlos", ClassType: "Group Fitness"},
		{Weekday: 2, StartTime: "11:00", Instructor: "Maria", ClassType: "Yoga"},
		{Weekday: 2, StartTime: "16:00", Instructor: "Sofia", ClassType: "Personal Training"},
		{Weekday: 3, StartTime: "09:00", Instructor: "Maria", ClassType: "Yoga"},
		{Weekday: 3, StartTime: "10:00", Instructor: "Sofia", ClassType: "Pilates"},
		{Weekday: 3, StartTime: "15:00", Instructor: "Carlos", ClassType: "HIIT"},
		{Weekday: 4, StartTime: "09:00", Instructor: "Carlos", ClassType: "Group Fitness"},
		{Weekday: 4, StartTime: "14:00", Instructor: "Sofia", ClassType: "Personal Training"},
		{Weekday: 5, StartTime: "09:00", Instructor: "Maria", ClassType: "Yoga"},
		{Weekday: 5, StartTime: "10:00", Instructor: "Carlos", ClassType: "HIIT"},
		{Weekday: 5, StartTime: "16:00", Instructor: "Sofia", ClassType: "Pilates"},
		{Weekday: 6, StartTime: "10:00", Instructor: "Maria", ClassType: "Group Fitness"},
	}
	for _, e := range entries {
		if err := store.CreateTimetableEntry(e); err != nil {
			log.Printf("Failed to seed timetable entry: %v", err)
			return
		}
	}
	log.Printf("📅 Seeded default timetable with %d entries", len(entries))
}

func storageType(cfg *config.Config) string {
	if cfg.UseMemoryStore {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func whatsappStatus(twilioSID string) string {
	if twilioSID == "" {
		return "Not configured"
	}
	return "Configured"
}
