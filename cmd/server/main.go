package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dues-backend/internal/apperr"
	"dues-backend/internal/audit"
	"dues-backend/internal/auth"
	"dues-backend/internal/classes"
	"dues-backend/internal/config"
	"dues-backend/internal/dashboard"
	"dues-backend/internal/database"
	"dues-backend/internal/demo"
	"dues-backend/internal/duedates"
	"dues-backend/internal/expense"
	"dues-backend/internal/ledger"
	"dues-backend/internal/members"
	"dues-backend/internal/payments"
	"dues-backend/internal/reconcile"
	"dues-backend/internal/reminders"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func newGateway(cfg *config.Config) payments.Gateway {
	if cfg.PaymentGateway == "midtrans" {
		return payments.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransProduction)
	}
	if cfg.MidtransServerKey == "" {
		log.Println("[WARN] MIDTRANS_SERVER_KEY is empty; sandbox payment notifications will be refused")
	}
	return payments.NewSandboxGateway(cfg.SandboxPayBaseURL, cfg.MidtransServerKey)
}

func main() {
	cfg := config.Load()
	database.Init(cfg)
	db := database.DB

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, created, err := auth.EnsureAdmin(db, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword); err != nil {
			log.Fatalf("[FATAL] bootstrap admin: %v", err)
		} else if created {
			log.Printf("[INFO] administrator %s created", cfg.AdminEmail)
		}
	}

	// One locker for every writer of member paid state.
	locks := reconcile.NewLocker()
	engine := reconcile.NewEngine(db, locks, cfg.Budget)
	ledgerSvc := ledger.NewService(db, locks)
	memberSvc := members.NewService(db, locks)
	classSvc := classes.NewService(db)
	dueDateSvc := duedates.NewService(db)
	expenseSvc := expense.NewService(db)
	seeder := demo.NewSeeder(db, locks)
	charts := dashboard.NewCharts(db)
	paymentSvc := payments.NewService(db, newGateway(cfg), ledgerSvc)
	dispatcher := reminders.NewDispatcher(db, reminders.NewNotifier(cfg.SlackWebhookURL), cfg.ReminderWorkers)
	guard := auth.NewJWTGuard(cfg.JWTSecret)
	authSvc := auth.NewService(db, guard)

	var scheduler *reminders.Scheduler
	if cfg.SchedulerEnabled {
		schedule, err := reminders.LoadSchedule(cfg.ReminderScheduleFile)
		if err != nil {
			log.Fatalf("[FATAL] reminder schedule: %v", err)
		}
		scheduler, err = reminders.NewScheduler(db, dispatcher, engine, schedule)
		if err != nil {
			log.Fatalf("[FATAL] reminder scheduler: %v", err)
		}
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.ErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "gateway": paymentSvc.Gateway().Name()})
	})
	api.Post("/auth/login", auth.LoginRateLimiter(), auth.LoginHandler(authSvc))
	api.Get("/payments/config", payments.ConfigHandler(paymentSvc))
	api.Post("/payments/notifications", payments.NotificationHandler(paymentSvc))

	// Any signed-in member, self-scoped where it matters
	protected := api.Group("", auth.JWTMiddleware(guard))
	protected.Get("/auth/me", auth.MeHandler())
	protected.Get("/members/me", members.MeHandler(memberSvc))
	protected.Get("/members/:id", auth.RequireSelfOrManager("id"), members.GetMemberHandler(memberSvc))
	protected.Get("/transactions", ledger.ListTransactionsHandler(ledgerSvc))
	protected.Get("/transactions/:id<int>", ledger.GetTransactionHandler(ledgerSvc))
	protected.Post("/payments/create-link", payments.CreateLinkHandler(paymentSvc))
	protected.Post("/payments/process", payments.ProcessHandler(paymentSvc))

	// Admin and Treasurer
	manager := protected.Group("", auth.RequireManager())

	manager.Get("/members", members.ListMembersHandler(memberSvc))
	manager.Post("/members", members.CreateMemberHandler(memberSvc))
	manager.Post("/auth/add-member", members.CreateMemberHandler(memberSvc))
	manager.Patch("/members/:id", members.UpdateMemberHandler(memberSvc))
	manager.Delete("/members/:id", members.DeleteMemberHandler(memberSvc))

	manager.Get("/stats", reconcile.StatsHandler(engine))
	manager.Get("/stats/monthly", reconcile.MonthlyStatsHandler(engine))

	manager.Get("/classes", classes.ListClassesHandler(classSvc))
	manager.Post("/classes", classes.CreateClassHandler(classSvc))
	manager.Patch("/classes/:id", classes.UpdateClassHandler(classSvc))
	manager.Delete("/classes/:id", classes.DeleteClassHandler(classSvc))

	manager.Get("/due-dates", duedates.ListDueDatesHandler(dueDateSvc))
	manager.Post("/due-dates", duedates.SetDueDateHandler(dueDateSvc))

	manager.Post("/transactions", ledger.CreateTransactionHandler(ledgerSvc))
	manager.Get("/transactions/export", ledger.ExportTransactionsHandler(ledgerSvc))
	manager.Post("/transactions/:id/complete", ledger.CompleteTransactionHandler(ledgerSvc))
	manager.Post("/transactions/:id/fail", ledger.FailTransactionHandler(ledgerSvc))
	manager.Delete("/transactions/:id", ledger.DeleteTransactionHandler(ledgerSvc))

	manager.Post("/reminders/individual/:memberId", reminders.SendIndividualHandler(dispatcher))
	manager.Post("/reminders/bulk", reminders.SendBulkHandler(dispatcher))
	manager.Get("/reminders/logs", reminders.ListLogsHandler(dispatcher))
	manager.Get("/reminders/schedule", reminders.ListJobsHandler(scheduler))

	manager.Post("/sample/seed", demo.SeedHandler(seeder))
	manager.Post("/sample/reset", demo.ResetHandler(seeder))

	manager.Get("/expenses", expense.ListExpensesHandler(expenseSvc))
	manager.Post("/expenses", expense.CreateExpenseHandler(expenseSvc))
	manager.Get("/expenses/summary/monthly", expense.MonthlySummaryHandler(expenseSvc))
	manager.Delete("/expenses/:id", expense.DeleteExpenseHandler(expenseSvc))

	manager.Get("/dashboard/collections", dashboard.CollectionsHandler(charts))
	manager.Get("/audit-logs", audit.ListAuditLogsHandler(db))

	go func() {
		log.Println("[INFO] server listening on port", cfg.HTTPPort)
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			log.Fatalf("[FATAL] listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(ctx)
	}
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("[WARN] shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
