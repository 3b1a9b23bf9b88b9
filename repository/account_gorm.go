package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/domains/account"
	pkgError "github.com/storylinehq/publisher/pkg/error"
	"gorm.io/gorm"
)

type accountModel struct {
	ID             string          `gorm:"primaryKey;column:id"`
	UserID         string          `gorm:"column:user_id;index;not null"`
	Platform       string          `gorm:"column:platform;index;not null"`
	ExternalID     string          `gorm:"column:external_id"`
	AccessToken    string          `gorm:"column:access_token"`
	RefreshToken   string          `gorm:"column:refresh_token"`
	TokenExpiresAt *time.Time      `gorm:"column:token_expires_at"`
	Status         string          `gorm:"column:status;index;not null"`
	CanPublish     bool            `gorm:"column:can_publish"`
	CanRefresh     bool            `gorm:"column:can_refresh"`
	DailyUsed      int             `gorm:"column:daily_used"`
	DailyLimit     int             `gorm:"column:daily_limit"`
	MonthlyUsed    int             `gorm:"column:monthly_used"`
	MonthlyLimit   int             `gorm:"column:monthly_limit"`
	QuotaResetAt   *time.Time      `gorm:"column:quota_reset_at"`
	LastPublishAt  *time.Time      `gorm:"column:last_publish_at"`
	AvgEngagement  sql.NullFloat64 `gorm:"column:avg_engagement"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (accountModel) TableName() string {
	return "platform_accounts"
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) account.IAccountRepository {
	r := &accountRepository{db: db}
	if db != nil {
		if err := db.AutoMigrate(&accountModel{}); err != nil {
			logrus.WithError(err).Error("[ACCOUNT] failed to init schema")
		}
	} else {
		logrus.Error("[ACCOUNT] GORM DB is nil, repository will be disabled")
	}
	return r
}

func (r *accountRepository) ensureDB() error {
	if r.db == nil {
		return pkgError.InternalServerError("account storage is not initialized")
	}
	return nil
}

func (r *accountRepository) Create(ctx context.Context, acc account.Account) error {
	if err := r.ensureDB(); err != nil {
		return err
	}
	model := toAccountModel(acc)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (account.Account, error) {
	if err := r.ensureDB(); err != nil {
		return account.Account{}, err
	}

	var model accountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return account.Account{}, pkgError.NotFoundError("account not found")
		}
		return account.Account{}, err
	}
	return fromAccountModel(model), nil
}

func (r *accountRepository) GetAccountsForUser(ctx context.Context, userID string) ([]account.Account, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}

	var models []accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("platform ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromAccountModels(models), nil
}

func (r *accountRepository) GetActiveAccountsForUser(ctx context.Context, userID string) ([]account.Account, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}

	var models []accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND can_publish = ?", userID, string(account.StatusActive), true).
		Order("platform ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromAccountModels(models), nil
}

func (r *accountRepository) UpdateAccountCredential(ctx context.Context, id string, update account.CredentialUpdate) error {
	if err := r.ensureDB(); err != nil {
		return err
	}

	fields := map[string]interface{}{
		"status": string(update.Status),
	}
	if update.AccessToken != "" {
		fields["access_token"] = update.AccessToken
	}
	if update.RefreshToken != "" {
		fields["refresh_token"] = update.RefreshToken
	}
	if !update.TokenExpiresAt.IsZero() {
		fields["token_expires_at"] = update.TokenExpiresAt
	}

	result := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.NotFoundError("account not found")
	}
	return nil
}

func (r *accountRepository) IncrementUsage(ctx context.Context, id string, at time.Time) error {
	if err := r.ensureDB(); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"daily_used":      gorm.Expr("daily_used + 1"),
			"monthly_used":    gorm.Expr("monthly_used + 1"),
			"last_publish_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgError.NotFoundError("account not found")
	}
	return nil
}

func toAccountModel(acc account.Account) accountModel {
	model := accountModel{
		ID:            acc.ID,
		UserID:        acc.UserID,
		Platform:      acc.Platform,
		ExternalID:    acc.ExternalID,
		AccessToken:   acc.AccessToken,
		RefreshToken:  acc.RefreshToken,
		Status:        string(acc.Status),
		CanPublish:    acc.CanPublish,
		CanRefresh:    acc.CanRefresh,
		DailyUsed:     acc.DailyUsed,
		DailyLimit:    acc.DailyLimit,
		MonthlyUsed:   acc.MonthlyUsed,
		MonthlyLimit:  acc.MonthlyLimit,
		LastPublishAt: acc.LastPublishAt,
		AvgEngagement: sql.NullFloat64{Float64: acc.AvgEngagement, Valid: acc.AvgEngagement != 0},
	}
	if !acc.TokenExpiresAt.IsZero() {
		t := acc.TokenExpiresAt
		model.TokenExpiresAt = &t
	}
	if !acc.QuotaResetAt.IsZero() {
		t := acc.QuotaResetAt
		model.QuotaResetAt = &t
	}
	return model
}

func fromAccountModel(m accountModel) account.Account {
	acc := account.Account{
		ID:            m.ID,
		UserID:        m.UserID,
		Platform:      m.Platform,
		ExternalID:    m.ExternalID,
		AccessToken:   m.AccessToken,
		RefreshToken:  m.RefreshToken,
		Status:        account.Status(m.Status),
		CanPublish:    m.CanPublish,
		CanRefresh:    m.CanRefresh,
		DailyUsed:     m.DailyUsed,
		DailyLimit:    m.DailyLimit,
		MonthlyUsed:   m.MonthlyUsed,
		MonthlyLimit:  m.MonthlyLimit,
		LastPublishAt: m.LastPublishAt,
		AvgEngagement: m.AvgEngagement.Float64,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.TokenExpiresAt != nil {
		acc.TokenExpiresAt = *m.TokenExpiresAt
	}
	if m.QuotaResetAt != nil {
		acc.QuotaResetAt = *m.QuotaResetAt
	}
	return acc
}

func fromAccountModels(models []accountModel) []account.Account {
	accounts := make([]account.Account, len(models))
	for i, m := range models {
		accounts[i] = fromAccountModel(m)
	}
	return accounts
}
