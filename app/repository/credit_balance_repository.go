package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ClasslyHQ/Classly/app/models"
)

type creditBalanceRepository struct {
	db *gorm.DB
}

// NewCreditBalanceRepository creates a credit balance repository backed by GORM.
func NewCreditBalanceRepository(db *gorm.DB) CreditBalanceRepository {
	return &creditBalanceRepository{db: db}
}

func (r *creditBalanceRepository) GetOrCreate(clientID, brandID uint) (*models.CreditBalance, error) {
	balance, err := r.GetByClientBrand(clientID, brandID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Lazy creation on first purchase. The unique (client, brand) index
	// absorbs the race between two first purchases.
	fresh := &models.CreditBalance{ClientID: clientID, BrandID: brandID}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}, {Name: "brand_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.GetByClientBrand(clientID, brandID)
}

func (r *creditBalanceRepository) GetByClientBrand(clientID, brandID uint) (*models.CreditBalance, error) {
	var b models.CreditBalance
	err := r.db.
		Preload("Packages", func(db *gorm.DB) *gorm.DB {
			return db.Order("purchase_date ASC, id ASC")
		}).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC, id ASC")
		}).
		Where("client_id = ? AND brand_id = ?", clientID, brandID).
		First(&b).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &b, nil
}

func (r *creditBalanceRepository) GetByID(id uint) (*models.CreditBalance, error) {
	var b models.CreditBalance
	err := r.db.
		Preload("Packages", func(db *gorm.DB) *gorm.DB {
			return db.Order("purchase_date ASC, id ASC")
		}).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC, id ASC")
		}).
		First(&b, id).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &b, nil
}

// Persist writes the in-memory aggregate back. Balance totals and packages
// are saved, new transactions (ID == 0) are inserted; existing transaction
// rows are never updated, keeping the ledger append-only.
func (r *creditBalanceRepository) Persist(balance *models.CreditBalance) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"available_credits":    balance.AvailableCredits,
			"total_credits_earned": balance.TotalCreditsEarned,
			"total_credits_used":   balance.TotalCreditsUsed,
		}
		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", balance.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		for i := range balance.Packages {
			pkg := &balance.Packages[i]
			pkg.BalanceID = balance.ID
			if pkg.ID == 0 {
				if err := tx.Create(pkg).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(&models.CreditPackage{}).
				Where("id = ?", pkg.ID).
				Updates(map[string]interface{}{
					"credits_remaining": pkg.CreditsRemaining,
					"status":            pkg.Status,
				}).Error; err != nil {
				return err
			}
		}

		for i := range balance.Transactions {
			txn := &balance.Transactions[i]
			if txn.ID != 0 {
				continue
			}
			txn.BalanceID = balance.ID
			if err := tx.Create(txn).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *creditBalanceRepository) ListWithExpiringPackages(now time.Time, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uint
	err := r.db.Model(&models.CreditPackage{}).
		Distinct("balance_id").
		Where("credits_remaining > 0 AND expiry_date < ?", now).
		Limit(limit).
		Pluck("balance_id", &ids).Error
	return ids, err
}
