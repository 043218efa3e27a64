package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/api/scheduler"
	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/databases/memdb"
	"github.com/linesmerrill/benefits-access-api/notify"
	"github.com/linesmerrill/benefits-access-api/redemption"
	"github.com/linesmerrill/benefits-access-api/seats"
	"github.com/linesmerrill/benefits-access-api/validation"
)

// MemoryURI selects the in-process store instead of MongoDB
const MemoryURI = "memory://"

// Stores bundles every collection the API works with together with the transactor that
// spans them
type Stores struct {
	Tx           databases.Transactor
	Codes        databases.AccessCodeDatabase
	Companies    databases.CompanyDatabase
	Employees    databases.EmployeeDatabase
	Consumptions databases.SessionConsumptionDatabase
	TopUps       databases.TopUpDatabase
	Issuers      databases.IssuerDatabase
	Locks        databases.SchedulerLockDatabase
}

// MongoStores builds Stores over a mongo database
func MongoStores(db databases.DatabaseHelper, client databases.ClientHelper) Stores {
	return Stores{
		Tx:           databases.NewTransactor(client),
		Codes:        databases.NewAccessCodeDatabase(db),
		Companies:    databases.NewCompanyDatabase(db),
		Employees:    databases.NewEmployeeDatabase(db),
		Consumptions: databases.NewSessionConsumptionDatabase(db),
		TopUps:       databases.NewTopUpDatabase(db),
		Issuers:      databases.NewIssuerDatabase(db),
		Locks:        databases.NewSchedulerLockDatabase(db),
	}
}

// MemoryStores builds Stores over an in-memory store
func MemoryStores(s *memdb.Store) Stores {
	return Stores{
		Tx:           s,
		Codes:        s.AccessCodes(),
		Companies:    s.Companies(),
		Employees:    s.Employees(),
		Consumptions: s.SessionConsumptions(),
		TopUps:       s.TopUps(),
		Issuers:      s.Issuers(),
		Locks:        s.SchedulerLocks(),
	}
}

// App stores the router and store handles, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Stores    Stores
	Metrics   *api.MetricsCollector
	Scheduler *scheduler.Scheduler

	// Inviter mails email-bound codes. Nil disables invitations.
	Inviter accesscodes.Inviter

	client databases.ClientHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	if a.Metrics == nil {
		a.Metrics = api.NewMetricsCollector(5000)
	}
	s := a.Stores

	issuerAuth := api.NewIssuerAuth(s.Issuers)
	personAuth := api.PersonMiddleware(a.Config.JWTSecret)
	limiter := api.NewRateLimiter(a.Config.ValidateRatePerMinute, a.Config.ValidateRateBurst)
	timeout := a.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timed := api.TimeoutMiddleware(timeout)

	ledger := seats.NewLedger(s.Tx, s.Companies, s.Employees, s.Consumptions, s.TopUps)
	validator := validation.NewValidator(s.Codes, s.Companies)
	window := a.Config.ValidateDebounce
	if window <= 0 {
		window = validation.DefaultWindow
	}
	coalescer := validation.NewCoalescer(validator, window)

	c := Company{DB: s.Companies, Ledger: ledger}
	ac := AccessCode{
		DB:        s.Codes,
		Generator: accesscodes.NewGenerator(s.Codes, s.Companies, a.Inviter),
		Lifecycle: accesscodes.NewLifecycle(s.Codes),
		Redeemer:  redemption.NewService(s.Tx, s.Codes, s.Companies, s.Employees),
		Coalescer: coalescer,
	}
	e := Employee{DB: s.Employees, Ledger: ledger}
	b := Billing{Ledger: ledger, WebhookSecret: a.Config.StripeWebhookSecret}
	m := Metrics{Collector: a.Metrics}

	issuer := func(h http.HandlerFunc) http.Handler { return timed(issuerAuth.Middleware(h)) }
	person := func(h http.HandlerFunc) http.Handler { return timed(personAuth(h)) }

	r := mux.NewRouter()
	r.Use(a.Metrics.Middleware)

	var pinger api.Pinger
	if a.client != nil {
		pinger = a.client
	}
	r.Handle("/health", api.HealthCheckHandler(pinger)).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/access-codes/validate", limiter.Middleware(timed(http.HandlerFunc(ac.ValidateAccessCodeHandler)))).Methods("GET")
	apiCreate.Handle("/access-codes/validate/live", limiter.Middleware(http.HandlerFunc(ac.LiveValidationHandler))).Methods("GET")
	apiCreate.Handle("/billing/webhook", timed(http.HandlerFunc(b.StripeWebhookHandler))).Methods("POST")

	apiCreate.Handle("/auth/token", issuer(issuerAuth.CreateToken)).Methods("POST")
	apiCreate.Handle("/auth/logout", issuer(issuerAuth.RevokeToken)).Methods("DELETE")

	apiCreate.Handle("/companies", issuer(c.CreateCompanyHandler)).Methods("POST")
	apiCreate.Handle("/companies/{companyId}", issuer(c.CompanyHandler)).Methods("GET")
	apiCreate.Handle("/companies/{companyId}/allocation", issuer(c.SetAllocationHandler)).Methods("PUT")
	apiCreate.Handle("/companies/{companyId}/reconciliation", issuer(c.ReconciliationHandler)).Methods("GET")
	apiCreate.Handle("/companies/{companyId}/access-codes", issuer(ac.ListAccessCodesHandler)).Methods("GET")
	apiCreate.Handle("/companies/{companyId}/employees", issuer(e.ListEmployeesHandler)).Methods("GET")
	apiCreate.Handle("/companies/{companyId}/employees/{employeeId}/allocation", issuer(e.SetEmployeeAllocationHandler)).Methods("PUT")
	apiCreate.Handle("/companies/{companyId}/employees/{employeeId}", issuer(e.DeactivateEmployeeHandler)).Methods("DELETE")

	apiCreate.Handle("/access-codes", issuer(ac.GenerateAccessCodeHandler)).Methods("POST")
	apiCreate.Handle("/access-codes/{codeId}/revoke", issuer(ac.RevokeAccessCodeHandler)).Methods("POST")
	apiCreate.Handle("/metrics", issuer(m.MetricsHandler)).Methods("GET")

	apiCreate.Handle("/access-codes/redeem", person(ac.RedeemAccessCodeHandler)).Methods("POST")
	apiCreate.Handle("/companies/{companyId}/employees/{employeeId}/sessions", person(e.ConsumeSessionHandler)).Methods("POST")
	apiCreate.Handle("/companies/{companyId}/employees/{employeeId}/sessions/{sessionId}", person(e.ReleaseSessionHandler)).Methods("DELETE")

	a.Scheduler = scheduler.NewScheduler(ac.Lifecycle, ledger, s.Locks, a.Config.SweepSchedule, a.Config.ReconcileSchedule)

	// swagger docs hosted at "/"
	r.PathPrefix("/").Handler(http.StripPrefix("/", http.FileServer(http.Dir("./docs/"))))
	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	if a.Config.URL == MemoryURI {
		zap.S().Warn("using the in-memory store, data will not survive a restart")
		a.Stores = MemoryStores(memdb.New())
	} else {
		client, err := databases.NewClient(&a.Config)
		if err != nil {
			zap.S().Errorw("failed to create new client", "error", err)
			return err
		}
		if err := client.Connect(); err != nil {
			zap.S().Errorw("failed to connect to database", "error", err)
			return err
		}
		db := databases.NewDatabase(&a.Config, client)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := databases.EnsureIndexes(ctx, db); err != nil {
			zap.S().Errorw("failed to ensure indexes", "error", err)
			return err
		}
		a.client = client
		a.Stores = MongoStores(db, client)
		zap.S().Infow("benefits-access-api has connected to the database", "database", a.Config.DatabaseName)
	}

	if a.Config.StripeSecretKey != "" {
		stripe.Key = a.Config.StripeSecretKey
	}
	if a.Config.StripeWebhookSecret == "" {
		zap.S().Warn("STRIPE_WEBHOOK_SECRET is not set, billing webhooks will be rejected")
	}
	// a nil *Mailer must not end up inside the interface
	if mailer := notify.NewMailer(&a.Config); mailer != nil {
		a.Inviter = mailer
	}

	a.initializeRoutes()
	return nil
}

// Close releases the database connection and background workers
func (a *App) Close(ctx context.Context) error {
	if a.Metrics != nil {
		a.Metrics.Stop()
	}
	if a.client != nil {
		return a.client.Disconnect(ctx)
	}
	return nil
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}
