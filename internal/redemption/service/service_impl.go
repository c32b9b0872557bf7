package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/redemption/domain"
	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	PoolRepo seatpooldomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	poolRepo seatpooldomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("redemption.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		poolRepo: p.PoolRepo,
	}
}

func (s *Service) Validate(ctx context.Context, conn *gorm.DB, code string) (domain.ValidateResult, error) {
	code = normalizeCode(code)
	row, err := s.repo.FindByCode(ctx, conn, code)
	if err != nil {
		return domain.ValidateResult{}, err
	}
	if row == nil {
		return domain.ValidateResult{Valid: false, Reason: "code does not exist"}, nil
	}

	now := s.clock.Now()
	if row.Status == domain.CodeUnused && row.ExpiresAt != nil && now.After(*row.ExpiresAt) {
		row.Status = domain.CodeExpired
		if err := s.repo.UpdateCode(ctx, conn, row); err != nil {
			return domain.ValidateResult{}, err
		}
		return domain.ValidateResult{Valid: false, Reason: "code has expired", Code: row}, nil
	}

	switch row.Status {
	case domain.CodeUnused:
		return domain.ValidateResult{Valid: true, Code: row}, nil
	case domain.CodeExpired:
		return domain.ValidateResult{Valid: false, Reason: "code has expired", Code: row}, nil
	case domain.CodeWarrantyActive:
		return domain.ValidateResult{Valid: true, Code: row}, nil
	case domain.CodeUsed:
		if row.HasWarranty {
			// Used warranty codes may still re-enter the flow; the reuse
			// guard runs under the row lock.
			return domain.ValidateResult{Valid: true, Code: row}, nil
		}
		return domain.ValidateResult{Valid: false, Reason: "code has already been used", Code: row}, nil
	default:
		return domain.ValidateResult{Valid: false, Reason: "code is not redeemable", Code: row}, nil
	}
}

func (s *Service) CanReuseWarranty(code *domain.RedemptionCode, email string, now time.Time) (bool, string) {
	if !code.HasWarranty {
		return false, "code does not carry a warranty"
	}
	if code.WarrantyExpiresAt == nil || !now.Before(*code.WarrantyExpiresAt) {
		return false, "warranty window has closed"
	}
	if strings.EqualFold(code.UsedByEmail, email) {
		return false, "code is already held by this email"
	}
	return true, ""
}

func (s *Service) GenerateSingle(ctx context.Context, req domain.GenerateRequest) (domain.RedemptionCode, error) {
	codes, err := s.GenerateBatch(ctx, req, 1)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	return codes[0], nil
}

func (s *Service) GenerateBatch(ctx context.Context, req domain.GenerateRequest, count int) ([]domain.RedemptionCode, error) {
	if count < 1 || count > 1000 {
		return nil, domain.ErrInvalidCount
	}
	customCode := normalizeCode(req.Code)
	if customCode != "" && count != 1 {
		return nil, domain.ErrInvalidCount
	}

	warrantyDays := req.WarrantyDays
	if req.HasWarranty && warrantyDays <= 0 {
		warrantyDays = 30
	}

	now := s.clock.Now()
	codes := make([]domain.RedemptionCode, 0, count)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < count; i++ {
			value := customCode
			if value == "" {
				value = newCodeValue()
			}
			code := domain.RedemptionCode{
				ID:           s.genID.Generate(),
				Code:         value,
				Status:       domain.CodeUnused,
				CreatedAt:    now,
				ExpiresAt:    req.ExpiresAt,
				HasWarranty:  req.HasWarranty,
				WarrantyDays: warrantyDays,
			}
			if err := s.repo.InsertCode(ctx, tx, &code); err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("generated redemption codes",
		zap.Int("count", count),
		zap.Bool("has_warranty", req.HasWarranty),
	)
	return codes, nil
}

func (s *Service) ListCodes(ctx context.Context) ([]*domain.RedemptionCode, error) {
	return s.repo.ListCodes(ctx, s.db)
}

func (s *Service) WithdrawRecord(ctx context.Context, id snowflake.ID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindRecordByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrRecordNotFound
		}

		code, err := s.repo.LockByCode(ctx, tx, record.Code)
		if err != nil {
			return err
		}

		if err := s.repo.DeleteRecord(ctx, tx, id); err != nil {
			return err
		}

		if code != nil {
			if err := s.RestoreCodeFromHistory(ctx, tx, code); err != nil {
				return err
			}
		}

		pool, err := s.poolRepo.LockByID(ctx, tx, record.PoolID)
		if err != nil {
			return err
		}
		if pool != nil {
			if pool.SeatsUsed > 0 {
				pool.SeatsUsed--
			}
			if pool.Status == seatpooldomain.StatusFull && pool.HasFreeSeat() {
				pool.Status = seatpooldomain.StatusActive
			}
			pool.UpdatedAt = s.clock.Now()
			if err := s.poolRepo.Update(ctx, tx, pool); err != nil {
				return err
			}
		}

		s.log.Info("withdrew redemption record",
			zap.Int64("record_id", int64(id)),
			zap.String("email", record.Email),
			zap.String("code", record.Code),
		)
		return nil
	})
}

// RestoreCodeFromHistory rewrites the code row from its surviving allocation
// records. A warranty code with prior successful allocations goes back to
// warranty_active under the most recent surviving holder; anything else is
// fully reset to unused.
func (s *Service) RestoreCodeFromHistory(ctx context.Context, tx *gorm.DB, code *domain.RedemptionCode) error {
	if code.HasWarranty {
		records, err := s.repo.RecordsByCode(ctx, tx, code.Code)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			latest := records[0]
			code.Status = domain.CodeWarrantyActive
			code.UsedByEmail = latest.Email
			poolID := latest.PoolID
			code.UsedPoolID = &poolID
			redeemedAt := latest.RedeemedAt
			code.UsedAt = &redeemedAt
			return s.repo.UpdateCode(ctx, tx, code)
		}
		code.WarrantyExpiresAt = nil
	}

	code.Status = domain.CodeUnused
	code.UsedByEmail = ""
	code.UsedPoolID = nil
	code.UsedAt = nil
	return s.repo.UpdateCode(ctx, tx, code)
}

func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// newCodeValue produces a 32-char hex token.
func newCodeValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
