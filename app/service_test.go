package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"personal-ledger/app"
	"personal-ledger/balance"
	"personal-ledger/cache"
	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
	"personal-ledger/store"
	"personal-ledger/uow"
)

// Helper to create decimals in tests
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const owner = "owner-1"

// conflictingStore fails the first n commits with a version conflict.
type conflictingStore struct {
	store.Store
	remaining atomic.Int32
	commits   atomic.Int32
}

func (s *conflictingStore) Commit(ctx context.Context, changes []store.Change) (int, error) {
	s.commits.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return 0, fmt.Errorf("simulated: %w", store.ErrOptimisticLock)
	}
	return s.Store.Commit(ctx, changes)
}

func newService(t *testing.T, st store.Store, registry *cache.Registry, retries int) *app.LedgerService {
	t.Helper()
	binder := func(bus *events.Bus, u *uow.UnitOfWork) {
		balance.NewHandlers(u, balance.SkipMissing).Register(bus)
	}
	units := uow.NewFactory(st, uow.Options{Dispatch: events.DispatchOptions{MaxParallelism: 4}}, binder)
	return app.NewLedgerService(units, registry, app.Options{CommitRetries: retries})
}

// setup initializes an in-memory store and a service without cache
func setup(t *testing.T) (*app.LedgerService, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return newService(t, st, nil, app.DefaultCommitRetries), st
}

func setupCached(t *testing.T) (*app.LedgerService, *store.InMemoryStore, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.NewInMemoryStore()
	registry := cache.NewRegistry(cache.NewRedisBackend(client), cache.Options{})
	return newService(t, st, registry, app.DefaultCommitRetries), st, m
}

func createAccount(t *testing.T, svc *app.LedgerService, id, opening string) {
	t.Helper()
	if _, err := svc.CreateAccount(context.Background(), app.CreateAccountCommand{AccountID: id, OwnerID: owner, OpeningBalance: dec(opening)}); err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", id, err)
	}
}

func balanceOf(t *testing.T, svc *app.LedgerService, id string) decimal.Decimal {
	t.Helper()
	acc, err := svc.GetAccount(context.Background(), app.GetAccountQuery{AccountID: id, OwnerID: owner})
	if err != nil {
		t.Fatalf("GetAccount(%s) failed: %v", id, err)
	}
	return acc.Balance
}

func assertBalance(t *testing.T, svc *app.LedgerService, id, want string) {
	t.Helper()
	if got := balanceOf(t, svc, id); !got.Equal(dec(want)) {
		t.Errorf("account %s: expected balance %s, got %s", id, want, got)
	}
}

func TestLedgerService_CreateAccount(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	t.Run("SuccessWithProvidedID", func(t *testing.T) {
		id, err := svc.CreateAccount(ctx, app.CreateAccountCommand{AccountID: "acc-test-1", OwnerID: owner, OpeningBalance: dec("100")})
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		if id != "acc-test-1" {
			t.Errorf("expected ID 'acc-test-1', got '%s'", id)
		}
		assertBalance(t, svc, id, "100")
	})

	t.Run("SuccessWithGeneratedID", func(t *testing.T) {
		id, err := svc.CreateAccount(ctx, app.CreateAccountCommand{OwnerID: owner})
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		if id == "" {
			t.Errorf("expected a generated ID, got empty string")
		}
	})

	t.Run("FailOnDuplicateID", func(t *testing.T) {
		_, err := svc.CreateAccount(ctx, app.CreateAccountCommand{AccountID: "acc-test-1", OwnerID: owner, OpeningBalance: dec("50")})
		if !errors.Is(err, store.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
		assertBalance(t, svc, "acc-test-1", "100")
	})

	t.Run("FailOnNegativeOpeningBalance", func(t *testing.T) {
		_, err := svc.CreateAccount(ctx, app.CreateAccountCommand{AccountID: "acc-neg", OwnerID: owner, OpeningBalance: dec("-50")})
		if !app.IsValidation(err) {
			t.Errorf("expected validation error, got %T: %v", err, err)
		}
		_, err = svc.GetAccount(ctx, app.GetAccountQuery{AccountID: "acc-neg", OwnerID: owner})
		if !app.IsNotFound(err) {
			t.Errorf("account should not exist after failed creation, got %v", err)
		}
	})

	t.Run("OtherOwnerCannotSeeIt", func(t *testing.T) {
		_, err := svc.GetAccount(ctx, app.GetAccountQuery{AccountID: "acc-test-1", OwnerID: "intruder"})
		if !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestLedgerService_Movements(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	createAccount(t, svc, "a", "100")
	createAccount(t, svc, "b", "20")

	var expenseID string
	t.Run("CreateExpense", func(t *testing.T) {
		id, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("30")})
		if err != nil {
			t.Fatalf("CreateMovement failed: %v", err)
		}
		expenseID = id
		assertBalance(t, svc, "a", "70")
	})

	t.Run("CreateIncome", func(t *testing.T) {
		if _, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Income, AccountID: "b", Amount: dec("5.55")}); err != nil {
			t.Fatalf("CreateMovement failed: %v", err)
		}
		assertBalance(t, svc, "b", "25.55")
	})

	t.Run("InsufficientFundsIsAtomic", func(t *testing.T) {
		_, err := svc.CreateMovement(ctx, app.CreateMovementCommand{MovementID: "too-big", OwnerID: owner, Kind: events.Expense, AccountID: "b", Amount: dec("1000")})
		if !errors.Is(err, domain.ErrInsufficientFunds) || !app.IsValidation(err) {
			t.Fatalf("expected insufficient funds validation error, got %v", err)
		}
		assertBalance(t, svc, "b", "25.55")
		if _, err := svc.GetMovement(ctx, app.GetMovementQuery{MovementID: "too-big", OwnerID: owner}); !app.IsNotFound(err) {
			t.Errorf("rejected movement must not be stored, got %v", err)
		}
	})

	t.Run("UpdateMovesToOtherAccount", func(t *testing.T) {
		err := svc.UpdateMovement(ctx, app.UpdateMovementCommand{MovementID: expenseID, OwnerID: owner, AccountID: "b", Amount: dec("10")})
		if err != nil {
			t.Fatalf("UpdateMovement failed: %v", err)
		}
		assertBalance(t, svc, "a", "100")
		assertBalance(t, svc, "b", "15.55")
		m, _ := svc.GetMovement(ctx, app.GetMovementQuery{MovementID: expenseID, OwnerID: owner})
		if m.AccountID != "b" || !m.Amount.Equal(dec("10")) {
			t.Errorf("unexpected stored movement: %+v", m)
		}
	})

	t.Run("UpdateByOtherOwnerIsNotFound", func(t *testing.T) {
		err := svc.UpdateMovement(ctx, app.UpdateMovementCommand{MovementID: expenseID, OwnerID: "intruder", AccountID: "a", Amount: dec("1")})
		if !errors.Is(err, domain.ErrMovementNotFound) {
			t.Errorf("expected ErrMovementNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := svc.DeleteMovement(ctx, app.DeleteMovementCommand{MovementID: expenseID, OwnerID: owner}); err != nil {
			t.Fatalf("DeleteMovement failed: %v", err)
		}
		assertBalance(t, svc, "b", "25.55")
		if err := svc.DeleteMovement(ctx, app.DeleteMovementCommand{MovementID: expenseID, OwnerID: owner}); !app.IsNotFound(err) {
			t.Errorf("expected not found on second delete, got %v", err)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		cmd := app.CreateMovementCommand{MovementID: "fixed", OwnerID: owner, Kind: events.Income, AccountID: "a", Amount: dec("1")}
		if _, err := svc.CreateMovement(ctx, cmd); err != nil {
			t.Fatalf("first create failed: %v", err)
		}
		if _, err := svc.CreateMovement(ctx, cmd); !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		assertBalance(t, svc, "a", "101")
	})
}

func TestLedgerService_Transfers(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	createAccount(t, svc, "a", "100")
	createAccount(t, svc, "b", "0")
	createAccount(t, svc, "c", "0")

	id, err := svc.CreateTransfer(ctx, app.CreateTransferCommand{OwnerID: owner, OriginAccountID: "a", DestinationAccountID: "b", Amount: dec("40")})
	if err != nil {
		t.Fatalf("CreateTransfer failed: %v", err)
	}
	assertBalance(t, svc, "a", "60")
	assertBalance(t, svc, "b", "40")

	t.Run("Redirect", func(t *testing.T) {
		err := svc.UpdateTransfer(ctx, app.UpdateTransferCommand{TransferID: id, OwnerID: owner, OriginAccountID: "a", DestinationAccountID: "c", Amount: dec("50")})
		if err != nil {
			t.Fatalf("UpdateTransfer failed: %v", err)
		}
		assertBalance(t, svc, "a", "50")
		assertBalance(t, svc, "b", "0")
		assertBalance(t, svc, "c", "50")
	})

	t.Run("SameAccountRejected", func(t *testing.T) {
		_, err := svc.CreateTransfer(ctx, app.CreateTransferCommand{OwnerID: owner, OriginAccountID: "a", DestinationAccountID: "a", Amount: dec("1")})
		if !errors.Is(err, domain.ErrSameAccount) {
			t.Errorf("expected ErrSameAccount, got %v", err)
		}
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		_, err := svc.CreateTransfer(ctx, app.CreateTransferCommand{OwnerID: owner, OriginAccountID: "b", DestinationAccountID: "a", Amount: dec("1")})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
		assertBalance(t, svc, "a", "50")
	})

	t.Run("Delete", func(t *testing.T) {
		if err := svc.DeleteTransfer(ctx, app.DeleteTransferCommand{TransferID: id, OwnerID: owner}); err != nil {
			t.Fatalf("DeleteTransfer failed: %v", err)
		}
		assertBalance(t, svc, "a", "100")
		assertBalance(t, svc, "c", "0")
	})
}

func TestLedgerService_RetriesVersionConflicts(t *testing.T) {
	t.Run("RecoversWithinBudget", func(t *testing.T) {
		inner := store.NewInMemoryStore()
		st := &conflictingStore{Store: inner}
		svc := newService(t, st, nil, 2)
		createAccount(t, svc, "a", "100")

		st.remaining.Store(2)
		st.commits.Store(0)
		if _, err := svc.CreateMovement(context.Background(), app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("10")}); err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if got := st.commits.Load(); got != 3 {
			t.Errorf("expected 3 commit attempts, got %d", got)
		}
		assertBalance(t, svc, "a", "90")
	})

	t.Run("GivesUp", func(t *testing.T) {
		inner := store.NewInMemoryStore()
		st := &conflictingStore{Store: inner}
		svc := newService(t, st, nil, 1)
		createAccount(t, svc, "a", "100")

		st.remaining.Store(5)
		_, err := svc.CreateMovement(context.Background(), app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("10")})
		if !errors.Is(err, store.ErrOptimisticLock) {
			t.Fatalf("expected ErrOptimisticLock, got %v", err)
		}
		st.remaining.Store(0)
		assertBalance(t, svc, "a", "100")
	})
}

func TestLedgerService_ConcurrentExpensesConserveMoney(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := newService(t, st, nil, 100)
	createAccount(t, svc, "a", "100")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.CreateMovement(ctx, app.CreateMovementCommand{
				MovementID: fmt.Sprintf("exp-%d", i), OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("7"),
			})
		}(i)
	}
	wg.Wait()

	page, err := svc.ListMovements(ctx, app.ListMovementsQuery{OwnerID: owner, Kind: events.Expense, Page: shared.PageRequest{PageSize: shared.MaxPageSize}})
	if err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	spent := decimal.Zero
	for _, m := range page.Items {
		spent = spent.Add(m.Amount)
	}
	if got := balanceOf(t, svc, "a").Add(spent); !got.Equal(dec("100")) {
		t.Errorf("balance plus recorded expenses must equal the opening balance, got %s", got)
	}
	if page.Total != 14 {
		t.Errorf("expected 14 expenses of 7 to fit into 100, got %d", page.Total)
	}
}

func TestLedgerService_CacheVersioning(t *testing.T) {
	svc, _, m := setupCached(t)
	ctx := context.Background()
	createAccount(t, svc, "a", "100")

	list := func(t *testing.T) shared.Page[*domain.Movement] {
		t.Helper()
		page, err := svc.ListMovements(ctx, app.ListMovementsQuery{OwnerID: owner, Kind: events.Expense})
		if err != nil {
			t.Fatalf("ListMovements failed: %v", err)
		}
		return page
	}

	if got := list(t).Total; got != 0 {
		t.Fatalf("expected empty list, got %d", got)
	}
	tokenBefore, _ := m.Get(cache.VersionKey(shared.ExpenseEntity, owner))
	assertBalance(t, svc, "a", "100")
	if !m.Exists(cache.EntityKey(shared.AccountEntity, "a")) {
		t.Fatal("expected the account to be cached after a read")
	}

	if _, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("25")}); err != nil {
		t.Fatalf("CreateMovement failed: %v", err)
	}

	if got := list(t).Total; got != 1 {
		t.Errorf("list must reflect the write immediately, got %d items", got)
	}
	tokenAfter, _ := m.Get(cache.VersionKey(shared.ExpenseEntity, owner))
	if tokenAfter == tokenBefore {
		t.Error("expected the expense list version to change")
	}
	assertBalance(t, svc, "a", "75")

	t.Run("UnrelatedScopeKeepsItsVersion", func(t *testing.T) {
		_, _ = svc.ListMovements(ctx, app.ListMovementsQuery{OwnerID: owner, Kind: events.Income})
		incomeBefore, _ := m.Get(cache.VersionKey(shared.IncomeEntity, owner))
		if _, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("1")}); err != nil {
			t.Fatalf("CreateMovement failed: %v", err)
		}
		incomeAfter, _ := m.Get(cache.VersionKey(shared.IncomeEntity, owner))
		if incomeBefore == "" || incomeBefore != incomeAfter {
			t.Errorf("income list version must survive an expense write: %q -> %q", incomeBefore, incomeAfter)
		}
	})

	t.Run("FailedWriteKeepsVersion", func(t *testing.T) {
		_ = list(t)
		before, _ := m.Get(cache.VersionKey(shared.ExpenseEntity, owner))
		_, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("5000")})
		if err == nil {
			t.Fatal("expected insufficient funds")
		}
		after, _ := m.Get(cache.VersionKey(shared.ExpenseEntity, owner))
		if before != after {
			t.Errorf("a rejected write must not invalidate: %q -> %q", before, after)
		}
	})

	t.Run("CacheDownStillServes", func(t *testing.T) {
		m.Close()
		if _, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("4")}); err != nil {
			t.Fatalf("writes must not fail when the cache is down: %v", err)
		}
		page, err := svc.ListMovements(ctx, app.ListMovementsQuery{OwnerID: owner, Kind: events.Expense})
		if err != nil || page.Total != 3 {
			t.Errorf("expected 3 expenses from the store, got %d (%v)", page.Total, err)
		}
	})
}

func TestLedgerService_GetMovementUsesKindSpecificCache(t *testing.T) {
	svc, _, m := setupCached(t)
	ctx := context.Background()
	createAccount(t, svc, "a", "100")
	id, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Income, AccountID: "a", Amount: dec("3"), Date: time.Now()})
	if err != nil {
		t.Fatalf("CreateMovement failed: %v", err)
	}

	got, err := svc.GetMovement(ctx, app.GetMovementQuery{MovementID: id, OwnerID: owner})
	if err != nil || got.Kind != events.Income {
		t.Fatalf("GetMovement = %+v, %v", got, err)
	}
	if !m.Exists(cache.EntityKey(shared.IncomeEntity, id)) {
		t.Error("expected income entity key")
	}
	if m.Exists(cache.EntityKey(shared.ExpenseEntity, id)) {
		t.Error("income must not be cached under the expense key")
	}
}

func TestLedgerService_RenameAccount(t *testing.T) {
	svc, _ := setup(t)
	createAccount(t, svc, "a", "0")
	ctx := context.Background()

	if err := svc.RenameAccount(ctx, app.RenameAccountCommand{AccountID: "a", OwnerID: owner, Name: "Wallet"}); err != nil {
		t.Fatalf("RenameAccount failed: %v", err)
	}
	page, _ := svc.ListAccounts(ctx, app.ListAccountsQuery{OwnerID: owner, Page: shared.PageRequest{Search: "wall"}})
	if page.Total != 1 || page.Items[0].Name != "Wallet" {
		t.Errorf("expected renamed account in search, got %+v", page.Items)
	}
	if err := svc.RenameAccount(ctx, app.RenameAccountCommand{AccountID: "a", OwnerID: "intruder", Name: "x"}); !app.IsNotFound(err) {
		t.Errorf("expected not found for foreign owner, got %v", err)
	}
}

func TestLedgerService_UpdateMovementKeepsDateAndKind(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	createAccount(t, svc, "a", "100")
	booked := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	id, err := svc.CreateMovement(ctx, app.CreateMovementCommand{OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("10"), Date: booked})
	if err != nil {
		t.Fatalf("CreateMovement failed: %v", err)
	}

	t.Run("ZeroDateKeepsStoredDate", func(t *testing.T) {
		err := svc.UpdateMovement(ctx, app.UpdateMovementCommand{MovementID: id, OwnerID: owner, Kind: events.Expense, AccountID: "a", Amount: dec("12")})
		if err != nil {
			t.Fatalf("UpdateMovement failed: %v", err)
		}
		m, err := svc.GetMovement(ctx, app.GetMovementQuery{MovementID: id, OwnerID: owner})
		if err != nil {
			t.Fatalf("GetMovement failed: %v", err)
		}
		if !m.Date.Equal(booked) {
			t.Errorf("expected date %s to be kept, got %s", booked, m.Date)
		}
		assertBalance(t, svc, "a", "88")
	})

	t.Run("WrongKindIsNotFound", func(t *testing.T) {
		err := svc.UpdateMovement(ctx, app.UpdateMovementCommand{MovementID: id, OwnerID: owner, Kind: events.Income, AccountID: "a", Amount: dec("1")})
		if !errors.Is(err, domain.ErrMovementNotFound) {
			t.Errorf("expected ErrMovementNotFound, got %v", err)
		}
		err = svc.DeleteMovement(ctx, app.DeleteMovementCommand{MovementID: id, OwnerID: owner, Kind: events.Income})
		if !errors.Is(err, domain.ErrMovementNotFound) {
			t.Errorf("expected ErrMovementNotFound, got %v", err)
		}
		if _, err := svc.GetMovement(ctx, app.GetMovementQuery{MovementID: id, OwnerID: owner, Kind: events.Income}); !app.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
		assertBalance(t, svc, "a", "88")
	})
}
