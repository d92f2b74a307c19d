package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"confreg/internal/model"
)

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentAlreadyDecided = errors.New("payment already decided")
	ErrAttendeeNotFound      = errors.New("attendee not found")
	ErrAttendeeOutOfScope    = errors.New("attendee belongs to another hospital")
	ErrAttendeeNotPayable    = errors.New("attendee is not awaiting payment")
	ErrMemberNotFound        = errors.New("member not found")
	ErrHospitalNotFound      = errors.New("hospital not found")
	ErrRegistrationType      = errors.New("unknown registration type")
	ErrDuplicate             = errors.New("duplicate record")
)

const uniqueViolation = "23505"
const foreignKeyViolation = "23503"

type Repository interface {
	GetMemberByID(ctx context.Context, id int64) (*model.Member, error)

	ListHospitals(ctx context.Context) ([]model.Hospital, error)
	CreateHospital(ctx context.Context, h *model.Hospital) error
	ListRegistrationTypes(ctx context.Context) ([]model.RegistrationType, error)

	GetAttendeesByIDs(ctx context.Context, ids []int64) ([]model.Attendee, error)
	ListAttendees(ctx context.Context, f AttendeeFilter) ([]model.Attendee, error)
	CreateAttendee(ctx context.Context, a *model.Attendee, actorID int64) (int64, error)
	ImportAttendeesTx(ctx context.Context, attendees []model.Attendee, actorID int64) ([]int64, error)

	CreatePaymentTx(ctx context.Context, p NewPayment) (*model.Payment, error)
	DecidePaymentTx(ctx context.Context, d PaymentDecision) (*model.Payment, error)
	GetPaymentByID(ctx context.Context, id int64) (*model.Payment, error)
	GetPaymentHospital(ctx context.Context, id int64) (string, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]model.Payment, error)

	ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil || db.Master == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.Master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations applied from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}
		if _, err := r.db.Master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations rolled back from %s", migrationsDir)
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
