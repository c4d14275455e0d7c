package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// EventKind is the provider-agnostic category a webhook payload classifies
// into. Each provider's decoder maps its own payload shape onto these.
type EventKind int

const (
	// EventAck acknowledges a payload that requires no state change.
	EventAck EventKind = iota
	EventConnectionAdded
	EventConnectionRemoved
	EventConnectionBroken
	EventConnectionFixed
	EventNewAccount
	EventAccountUpdated
	EventAccountRemoved
	EventTransactionsUpdated
	EventProviderStatusChanged
	EventFailure
)

// Notifier is told about broken connections so the user can be prompted to
// re-authorize. Implementations must not fail the webhook path.
type Notifier interface {
	NotifyConnectionBroken(ctx context.Context, userID uuid.UUID, connectionID string)
}

// Enricher augments freshly ingested transactions with categorization and
// cleaned descriptions.
type Enricher interface {
	EnrichBatch(ctx context.Context, userID uuid.UUID, transactionIDs []uuid.UUID) error
}

// Service reconciles asynchronous provider events against local state.
// Every mutating handler keys its writes on natural-key upserts or scoped
// deletes, so redelivered events are safe, and runs them inside a single
// transaction so resolution failures leave no partial state.
type Service struct {
	db       *sql.DB
	registry *providers.Registry
	notifier Notifier
	enricher Enricher
}

// NewService creates a reconciler over db using the given adapter registry.
// notifier and enricher may be nil.
func NewService(db *sql.DB, registry *providers.Registry, notifier Notifier, enricher Enricher) *Service {
	return &Service{db: db, registry: registry, notifier: notifier, enricher: enricher}
}

// ConnectionAdded links a registered user to an institution under the
// provider's connection id. Each resolution step that fails aborts with no
// partial write.
func (s *Service) ConnectionAdded(ctx context.Context, providerName, providerUserID, providerInstitutionID, connectionID string) error {
	return storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		provider, err := storage.NewProviderRepository(tx).GetByName(ctx, providerName)
		if err != nil {
			return err
		}

		institution, err := storage.NewInstitutionRepository(tx).GetByProviderInstitutionID(ctx, provider.ID, providerInstitutionID)
		if err != nil {
			return err
		}

		pc, err := storage.NewProviderConnectionRepository(tx).GetByProviderUserID(ctx, provider.ID, providerUserID)
		if err != nil {
			return err
		}

		_, err = storage.NewInstitutionConnectionRepository(tx).Upsert(ctx, types.InstitutionConnection{
			ID:                   uuid.New(),
			InstitutionID:        institution.ID,
			ProviderConnectionID: pc.ID,
			ConnectionID:         connectionID,
			Broken:               false,
		})
		return err
	})
}

// ConnectionRemoved deletes the institution link for the provider's
// connection id. Deleting an already-absent link succeeds.
func (s *Service) ConnectionRemoved(ctx context.Context, providerName, providerUserID, connectionID string) error {
	return storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		provider, err := storage.NewProviderRepository(tx).GetByName(ctx, providerName)
		if err != nil {
			return err
		}

		pc, err := storage.NewProviderConnectionRepository(tx).GetByProviderUserID(ctx, provider.ID, providerUserID)
		if err != nil {
			return err
		}

		return storage.NewInstitutionConnectionRepository(tx).DeleteByConnectionID(ctx, pc.ID, connectionID)
	})
}

// ConnectionBrokenChanged flips the broken flag for the provider's
// connection id and, when it breaks, prompts the user to re-authorize.
func (s *Service) ConnectionBrokenChanged(ctx context.Context, providerName, providerUserID, connectionID string, broken bool) error {
	var userID uuid.UUID

	err := storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		provider, err := storage.NewProviderRepository(tx).GetByName(ctx, providerName)
		if err != nil {
			return err
		}

		pc, err := storage.NewProviderConnectionRepository(tx).GetByProviderUserID(ctx, provider.ID, providerUserID)
		if err != nil {
			return err
		}
		userID = pc.UserID

		return storage.NewInstitutionConnectionRepository(tx).SetBroken(ctx, pc.ID, connectionID, broken)
	})
	if err != nil {
		return err
	}

	if broken && s.notifier != nil {
		s.notifier.NotifyConnectionBroken(ctx, userID, connectionID)
	}
	return nil
}

// ProviderStatusChanged updates the enabled flag on the institution the
// provider reported a status change for.
func (s *Service) ProviderStatusChanged(ctx context.Context, providerName, providerInstitutionID string, enabled bool) error {
	return storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		provider, err := storage.NewProviderRepository(tx).GetByName(ctx, providerName)
		if err != nil {
			return err
		}
		return storage.NewInstitutionRepository(tx).SetEnabled(ctx, provider.ID, providerInstitutionID, enabled)
	})
}

// AccountData pulls the current account snapshot from the provider and
// upserts it, holdings included. The provider pull happens before the
// transaction opens so a hung provider call never holds a database
// transaction.
func (s *Service) AccountData(ctx context.Context, providerName, providerUserID, connectionID, providerAccountID string) error {
	provider, err := storage.NewProviderRepository(s.db).GetByName(ctx, providerName)
	if err != nil {
		return err
	}

	pc, err := storage.NewProviderConnectionRepository(s.db).GetByProviderUserID(ctx, provider.ID, providerUserID)
	if err != nil {
		return err
	}
	if pc.Secret == "" {
		return fmt.Errorf("provider connection %s has no secret", pc.ID)
	}

	ic, err := storage.NewInstitutionConnectionRepository(s.db).GetByConnectionID(ctx, pc.ID, connectionID)
	if err != nil {
		return err
	}

	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}

	accounts, err := adapter.GetAccounts(ctx, providers.AccountParams{
		Connection:        pc,
		ConnectionID:      connectionID,
		ProviderAccountID: providerAccountID,
	})
	if err != nil {
		return err
	}

	return storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := storage.NewAccountRepository(tx)
		for _, pa := range accounts {
			if err := upsertProviderAccount(ctx, repo, pc.UserID, ic.ID, pa); err != nil {
				return err
			}
		}
		return nil
	})
}

// TransactionData pulls transactions for the account the provider reported
// activity on, upserts them, and runs enrichment over the written rows. As
// with AccountData the provider pull happens outside any transaction.
func (s *Service) TransactionData(ctx context.Context, providerName, providerUserID, connectionID, providerAccountID string) error {
	provider, err := storage.NewProviderRepository(s.db).GetByName(ctx, providerName)
	if err != nil {
		return err
	}

	pc, err := storage.NewProviderConnectionRepository(s.db).GetByProviderUserID(ctx, provider.ID, providerUserID)
	if err != nil {
		return err
	}
	if pc.Secret == "" {
		return fmt.Errorf("provider connection %s has no secret", pc.ID)
	}

	ic, err := storage.NewInstitutionConnectionRepository(s.db).GetByConnectionID(ctx, pc.ID, connectionID)
	if err != nil {
		return err
	}

	account, err := storage.NewAccountRepository(s.db).GetByProviderAccountID(ctx, ic.ID, providerAccountID)
	if err != nil {
		return err
	}

	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}

	inserts, err := adapter.GetTransactions(ctx, providers.TransactionParams{
		Connection:        pc,
		ConnectionID:      connectionID,
		AccountID:         account.ID,
		ProviderAccountID: providerAccountID,
	})
	if err != nil {
		return err
	}

	ids, err := s.IngestTransactions(ctx, inserts)
	if err != nil {
		return err
	}

	if s.enricher != nil && len(ids) > 0 {
		return s.enricher.EnrichBatch(ctx, pc.UserID, ids)
	}
	return nil
}

// AccountRemoved deletes the account matched by the provider account id.
func (s *Service) AccountRemoved(ctx context.Context, providerName, providerUserID, connectionID, providerAccountID string) error {
	return storage.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		provider, err := storage.NewProviderRepository(tx).GetByName(ctx, providerName)
		if err != nil {
			return err
		}

		pc, err := storage.NewProviderConnectionRepository(tx).GetByProviderUserID(ctx, provider.ID, providerUserID)
		if err != nil {
			return err
		}

		ic, err := storage.NewInstitutionConnectionRepository(tx).GetByConnectionID(ctx, pc.ID, connectionID)
		if err != nil {
			return err
		}

		return storage.NewAccountRepository(tx).DeleteByProviderAccountID(ctx, ic.ID, providerAccountID)
	})
}

// Failure acknowledges a provider failure callback without mutating state.
// Revoking the pending registration here is a deliberate non-action.
func (s *Service) Failure(ctx context.Context, providerName string, detail string) {
	logger.WithFields(logger.Fields{
		"Provider": providerName,
		"Detail":   detail,
	}).Info("provider reported a failed connection attempt")
}

// IngestTransactions upserts provider transactions concurrently and waits
// for all to settle, returning the ids of the written rows. Individual
// failures are surfaced, not swallowed.
func (s *Service) IngestTransactions(ctx context.Context, inserts []types.TransactionInsert) ([]uuid.UUID, error) {
	repo := storage.NewTransactionRepository(s.db)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, len(inserts))
	errs := make([]error, len(inserts))

	for i, insert := range inserts {
		wg.Add(1)
		go func(i int, insert types.TransactionInsert) {
			defer wg.Done()
			ids[i], errs[i] = repo.UpsertProviderTransaction(ctx, insert)
		}(i, insert)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// upsertProviderAccount writes one provider account and its holding lines.
func upsertProviderAccount(ctx context.Context, repo *storage.AccountRepository, userID, institutionConnectionID uuid.UUID, pa types.ProviderAccount) error {
	icID := institutionConnectionID
	accountID, err := repo.UpsertProviderAccount(ctx, types.Account{
		ID:                      uuid.New(),
		Type:                    pa.Type,
		Subtype:                 pa.Subtype,
		UserID:                  userID,
		Name:                    pa.Name,
		Value:                   pa.Value,
		Currency:                pa.Currency,
		Cost:                    DeriveCost(pa),
		InstitutionConnectionID: &icID,
		ProviderAccountID:       pa.ProviderAccountID,
		Image:                   pa.Image,
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(pa.Holdings))
	for _, h := range pa.Holdings {
		names = append(names, h.Name)

		var cost decimal.NullDecimal
		if h.AveragePurchasePrice.Valid {
			cost = decimal.NullDecimal{Decimal: h.AveragePurchasePrice.Decimal.Mul(h.Units), Valid: true}
		}

		parentID := accountID
		if _, err := repo.UpsertHolding(ctx, types.Account{
			ID:                      uuid.New(),
			Type:                    pa.Type,
			Subtype:                 "holding",
			UserID:                  userID,
			Name:                    h.Name,
			Value:                   h.Value,
			Currency:                h.Currency,
			Cost:                    cost,
			Units:                   decimal.NullDecimal{Decimal: h.Units, Valid: true},
			Ticker:                  h.Ticker,
			ParentID:                &parentID,
			InstitutionConnectionID: &icID,
			Image:                   h.Image,
		}); err != nil {
			return err
		}
	}

	// Positions the provider no longer reports are gone.
	return repo.DeleteHoldingsExcept(ctx, accountID, names)
}

// DeriveCost computes an account's cost basis: the sum of unit price times
// units across holdings, falling back to the provider-reported cost,
// falling back to null.
func DeriveCost(pa types.ProviderAccount) decimal.NullDecimal {
	sum := decimal.Zero
	found := false
	for _, h := range pa.Holdings {
		if h.AveragePurchasePrice.Valid {
			sum = sum.Add(h.AveragePurchasePrice.Decimal.Mul(h.Units))
			found = true
		}
	}
	if found {
		return decimal.NullDecimal{Decimal: sum, Valid: true}
	}
	if pa.Cost.Valid {
		return pa.Cost
	}
	return decimal.NullDecimal{}
}
