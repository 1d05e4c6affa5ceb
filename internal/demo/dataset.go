package demo

import (
	"time"

	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
)

type demoClass struct {
	Name string
	Dues decimal.Decimal
}

type demoDueDate struct {
	At      time.Time
	Classes []string
}

type demoPayment struct {
	Amount  decimal.Decimal
	Method  string
	Status  models.TransactionStatus
	DaysAgo int
}

type demoMember struct {
	Name     string
	Email    string
	Phone    string
	Class    string
	Payments []demoPayment
}

type demoExpense struct {
	Category    string
	Amount      decimal.Decimal
	Description string
	EventName   string
	DaysAgo     int
}

type dataset struct {
	classes  []demoClass
	dueDates []demoDueDate
	members  []demoMember
	expenses []demoExpense
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pay(amount, method string, status models.TransactionStatus, daysAgo int) demoPayment {
	return demoPayment{Amount: d(amount), Method: method, Status: status, DaysAgo: daysAgo}
}

// endOfDay matches how due dates entered as YYYY-MM-DD are stored.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// buildDataset is anchored on now so the snapshot always shows a mix of
// Paid, Pending and Overdue members. Kuf and Resh are already past due.
func buildDataset(now time.Time) dataset {
	return dataset{
		classes: []demoClass{
			{"Tav", d("180")},
			{"Shin", d("150")},
			{"Kuf", d("150")},
			{"Resh", d("120")},
		},
		dueDates: []demoDueDate{
			{At: endOfDay(now.AddDate(0, 0, -14)), Classes: []string{"Kuf", "Resh"}},
			{At: endOfDay(now.AddDate(0, 0, 30)), Classes: []string{"Tav", "Shin"}},
		},
		members: []demoMember{
			{"Alex Johnson", "alex.johnson@northeastern.edu", "617-555-0100", "Tav", []demoPayment{
				pay("180", models.MethodCard, models.TxCompleted, 20),
			}},
			{"Sarah Chen", "sarah.chen@northeastern.edu", "617-555-0101", "Shin", []demoPayment{
				pay("150", models.MethodCard, models.TxPending, 1),
			}},
			{"Michael Brown", "michael.brown@northeastern.edu", "617-555-0102", "Kuf", []demoPayment{
				pay("150", models.MethodCard, models.TxFailed, 16),
			}},
			{"Emily Davis", "emily.davis@northeastern.edu", "617-555-0103", "Shin", []demoPayment{
				pay("150", models.MethodCash, models.TxCompleted, 35),
			}},
			{"James Wilson", "james.wilson@northeastern.edu", "617-555-0104", "Resh", nil},
			{"Lisa Anderson", "lisa.anderson@northeastern.edu", "617-555-0105", "Tav", nil},
			{"David Martinez", "david.martinez@northeastern.edu", "617-555-0106", "Shin", []demoPayment{
				pay("50", models.MethodCash, models.TxCompleted, 40),
				pay("40", models.MethodManual, models.TxCompleted, 10),
			}},
			{"Jennifer Garcia", "jennifer.garcia@northeastern.edu", "617-555-0107", "Kuf", []demoPayment{
				pay("150", models.MethodCard, models.TxCompleted, 25),
			}},
			{"Robert Taylor", "robert.taylor@northeastern.edu", "617-555-0108", "Resh", []demoPayment{
				pay("60", models.MethodCash, models.TxCompleted, 45),
			}},
			{"Jessica Taylor", "jessica.taylor@northeastern.edu", "617-555-0109", "Tav", []demoPayment{
				pay("100", models.MethodCard, models.TxCompleted, 60),
				pay("80", models.MethodCard, models.TxCompleted, 5),
			}},
		},
		expenses: []demoExpense{
			{"Events", d("320.00"), "Venue deposit", "Spring Formal", 30},
			{"Food", d("145.60"), "Pizza for chapter meeting", "Chapter Meeting", 12},
			{"Supplies", d("58.25"), "Banners and printing", "Recruitment", 8},
			{"Philanthropy", d("200.00"), "Charity 5K registration", "Charity 5K", 3},
		},
	}
}
