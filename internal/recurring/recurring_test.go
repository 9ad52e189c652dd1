package recurring

import (
	"math"
	"testing"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

func rentTx(stmt string, day int, amount float64) domain.Transaction {
	return domain.Transaction{
		ID: "row-" + stmt, Description: "OAKWOOD PROPERTY RENT",
		Amount: amount, Category: domain.CategoryHousing,
		RecurrenceKey: "oakwood_property_rent", Day: day, StatementID: stmt,
	}
}

func TestBuild_RentAcrossMonths(t *testing.T) {
	rows := Build([]domain.Transaction{
		rentTx("2025-01", 1, -1800),
		rentTx("2025-02", 2, -1800),
		rentTx("2025-03", 1, -1815),
	})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.Type != TypeExpense {
		t.Errorf("type = %q, want EXPENSE", r.Type)
	}
	if r.Day != 1 { // mean of 1,2,1 rounds to 1
		t.Errorf("day = %d, want 1", r.Day)
	}
	if math.Abs(r.AvgAmount-1805) > 0.01 {
		t.Errorf("avg = %v, want 1805", r.AvgAmount)
	}
	if r.Category != domain.CategoryHousing {
		t.Errorf("category = %q, want Housing", r.Category)
	}
}

func TestBuild_RequiresTwoDistinctMonths(t *testing.T) {
	// Two charges in the same month are not a recurring bill.
	rows := Build([]domain.Transaction{
		rentTx("2025-01", 1, -1800),
		rentTx("2025-01", 15, -1800),
	})
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0 for a single-month group", len(rows))
	}
}

func TestBuild_CategoryAllowList(t *testing.T) {
	mk := func(stmt string, cat domain.Category) domain.Transaction {
		return domain.Transaction{
			ID: "row-" + stmt, Description: "WEEKLY BURGER", Amount: -12,
			Category: cat, RecurrenceKey: "weekly_burger", Day: 5, StatementID: stmt,
		}
	}
	// Dining recurs monthly but is not an allow-listed bill category.
	rows := Build([]domain.Transaction{
		mk("2025-01", domain.CategoryDining),
		mk("2025-02", domain.CategoryDining),
	})
	if len(rows) != 0 {
		t.Errorf("dining rows = %d, want 0", len(rows))
	}

	// An override into an allow-listed category makes it qualify.
	a := mk("2025-01", domain.CategoryDining)
	b := mk("2025-02", domain.CategoryDining)
	a.CategoryOverride = domain.CategorySubscriptions
	b.CategoryOverride = domain.CategorySubscriptions
	rows = Build([]domain.Transaction{a, b})
	if len(rows) != 1 {
		t.Errorf("overridden rows = %d, want 1", len(rows))
	}
}

func TestBuild_Exclusions(t *testing.T) {
	mk := func(stmt, desc string, cashback float64) domain.Transaction {
		return domain.Transaction{
			ID: "row-" + stmt + desc, Description: desc, Amount: -100,
			Category: domain.CategoryDebt, RecurrenceKey: "k_" + desc,
			Day: 10, StatementID: stmt, Cashback: cashback,
		}
	}
	rows := Build([]domain.Transaction{
		mk("2025-01", "CARD PAYMENT THANK YOU", 0),
		mk("2025-02", "CARD PAYMENT THANK YOU", 0),
		mk("2025-01", "GROCERY CASH BACK $20.00", 20),
		mk("2025-02", "GROCERY CASH BACK $20.00", 20),
		mk("2025-01", "DBT CRD 0314 VENDOR", 0),
		mk("2025-02", "DBT CRD 0314 VENDOR", 0),
	})
	if len(rows) != 0 {
		t.Errorf("rows = %d, want all excluded", len(rows))
	}
}

func TestBuild_IncomeDirectionAndSort(t *testing.T) {
	pay := func(stmt string) domain.Transaction {
		return domain.Transaction{
			ID: "p-" + stmt, Description: "ACME PAYROLL", Amount: 2500,
			Category: domain.CategoryIncome, RecurrenceKey: "acme_payroll",
			Day: 15, StatementID: stmt,
		}
	}
	rows := Build([]domain.Transaction{
		pay("2025-01"), pay("2025-02"),
		rentTx("2025-01", 1, -1800), rentTx("2025-02", 1, -1800),
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Sorted by day: rent (1) before payroll (15).
	if rows[0].Day != 1 || rows[1].Day != 15 {
		t.Errorf("sort order wrong: %+v", rows)
	}
	if rows[1].Type != TypeIncome {
		t.Errorf("payroll type = %q, want INCOME", rows[1].Type)
	}
}

func TestForecastTypicalMonth(t *testing.T) {
	curve := ForecastTypicalMonth([]RecurringRow{
		{Description: "Payroll", Day: 15, AvgAmount: 2500, Type: TypeIncome},
		{Description: "Rent", Day: 1, AvgAmount: 1800, Type: TypeExpense},
		{Description: "Netflix", Day: 15, AvgAmount: 15.49, Type: TypeExpense},
	}, 1000)

	if len(curve) != 31 {
		t.Fatalf("curve length = %d, want 31", len(curve))
	}
	if curve[0].Balance != -800 { // 1000 - 1800 on day 1
		t.Errorf("day 1 balance = %v, want -800", curve[0].Balance)
	}
	want := -800 + 2500 - 15.49
	if math.Abs(curve[14].Balance-want) > 0.01 {
		t.Errorf("day 15 balance = %v, want %v", curve[14].Balance, want)
	}
	if math.Abs(curve[30].Balance-want) > 0.01 {
		t.Errorf("day 31 balance = %v, want flat %v", curve[30].Balance, want)
	}
	if curve[14].Delta == 0 {
		t.Error("day 15 delta should reflect payroll and netflix")
	}
}
