package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"floraledger/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedOutput means the model answered but the answer is not a valid payload.
	ErrMalformedOutput = errors.New("malformed extractor output")
	// ErrUnavailable means the model could not be reached or returned nothing.
	ErrUnavailable = errors.New("extractor unavailable")
)

var validate = validator.New()

type wireSale struct {
	Item      string              `json:"item" validate:"required"`
	Quantity  decimal.NullDecimal `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	Quality   string              `json:"quality" validate:"omitempty,oneof=regular special"`
}

type wireExpense struct {
	Description string              `json:"description" validate:"required"`
	Amount      decimal.NullDecimal `json:"amount"`
}

type wireTransaction struct {
	Date           string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Sales          []wireSale          `json:"sales" validate:"dive"`
	Expenses       []wireExpense       `json:"expenses" validate:"dive"`
	TotalSalePrice decimal.NullDecimal `json:"total_sale_price"`
	PaymentMethod  *string             `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer"`
	SenderName     *string             `json:"sender_name"`
}

type wireInventoryEntry struct {
	Item     string              `json:"item" validate:"required"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Quality  string              `json:"quality" validate:"omitempty,oneof=regular special"`
}

type wireInventory struct {
	Inventory []wireInventoryEntry `json:"inventory" validate:"dive"`
}

var qualityAliases = map[string]string{
	"especial": model.QualitySpecial,
	"normal":   model.QualityRegular,
}

var paymentAliases = map[string]string{
	"efectivo":      model.PaymentMethodCash,
	"transferencia": model.PaymentMethodBankTransfer,
	"transfer":      model.PaymentMethodBankTransfer,
}

// ParseTransaction decodes and schema-checks a transaction payload produced by the model.
// The returned transaction has no transaction_id; date may be empty.
func ParseTransaction(raw string) (*model.Transaction, error) {
	var w wireTransaction
	if err := decode(raw, &w); err != nil {
		return nil, err
	}

	for i := range w.Sales {
		w.Sales[i].Item = strings.TrimSpace(w.Sales[i].Item)
		w.Sales[i].Quality = normalizeQuality(w.Sales[i].Quality)
	}
	for i := range w.Expenses {
		w.Expenses[i].Description = strings.TrimSpace(w.Expenses[i].Description)
	}
	if w.PaymentMethod != nil {
		pm := normalizePayment(*w.PaymentMethod)
		if pm == "" {
			w.PaymentMethod = nil
		} else {
			w.PaymentMethod = &pm
		}
	}
	if err := validate.Struct(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	tx := &model.Transaction{
		Date:       w.Date,
		SenderName: w.SenderName,
	}

	for _, s := range w.Sales {
		sale := model.Sale{Item: s.Item, Quality: s.Quality, UnitPrice: s.UnitPrice}
		if s.Quantity.Valid {
			q, err := wholeQuantity(s.Quantity.Decimal)
			if err != nil {
				return nil, fmt.Errorf("%w: sale %q: %v", ErrMalformedOutput, s.Item, err)
			}
			sale.Quantity = &q
		}
		if s.UnitPrice.Valid && s.UnitPrice.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: sale %q has a negative unit price", ErrMalformedOutput, s.Item)
		}
		tx.Sales = append(tx.Sales, sale)
	}

	for _, e := range w.Expenses {
		if !e.Amount.Valid {
			return nil, fmt.Errorf("%w: expense %q has no amount", ErrMalformedOutput, e.Description)
		}
		if e.Amount.Decimal.IsNegative() {
			return nil, fmt.Errorf("%w: expense %q has a negative amount", ErrMalformedOutput, e.Description)
		}
		tx.Expenses = append(tx.Expenses, model.Expense{Description: e.Description, Amount: e.Amount.Decimal})
	}

	if !tx.HasSales() {
		// total and payment method only describe sales
		return tx, nil
	}

	method := model.PaymentMethodCash
	if w.PaymentMethod != nil {
		method = *w.PaymentMethod
	}
	tx.PaymentMethod = &method

	total := w.TotalSalePrice
	if !total.Valid {
		computed, ok := computeTotal(tx.Sales)
		if !ok {
			return nil, fmt.Errorf("%w: sales without total_sale_price or unit prices", ErrMalformedOutput)
		}
		total = decimal.NewNullDecimal(computed)
	}
	if total.Decimal.IsNegative() {
		return nil, fmt.Errorf("%w: negative total_sale_price", ErrMalformedOutput)
	}
	tx.TotalSalePrice = total

	return tx, nil
}

// ParseInventory decodes a bulk inventory payload of the form {"inventory": [...]}.
func ParseInventory(raw string) ([]model.InventoryEntry, error) {
	var w wireInventory
	if err := decode(raw, &w); err != nil {
		return nil, err
	}
	for i := range w.Inventory {
		w.Inventory[i].Item = strings.TrimSpace(w.Inventory[i].Item)
		w.Inventory[i].Quality = normalizeQuality(w.Inventory[i].Quality)
	}
	if err := validate.Struct(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	entries := make([]model.InventoryEntry, 0, len(w.Inventory))
	for _, e := range w.Inventory {
		entry := model.InventoryEntry{Item: e.Item, Quality: e.Quality}
		if e.Quantity.Valid {
			q, err := wholeQuantity(e.Quantity.Decimal)
			if err != nil {
				return nil, fmt.Errorf("%w: inventory %q: %v", ErrMalformedOutput, e.Item, err)
			}
			entry.Quantity = q
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decode(raw string, v interface{}) error {
	body := stripFences(raw)
	if body == "" {
		return fmt.Errorf("%w: empty answer", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// stripFences drops a markdown code fence some models wrap around JSON.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizeQuality(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return model.QualityRegular
	}
	if alias, ok := qualityAliases[q]; ok {
		return alias
	}
	return q
}

func normalizePayment(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if alias, ok := paymentAliases[p]; ok {
		return alias
	}
	return p
}

func wholeQuantity(d decimal.Decimal) (int, error) {
	if d.IsNegative() {
		return 0, errors.New("negative quantity")
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("fractional quantity %s", d)
	}
	return int(d.IntPart()), nil
}

func computeTotal(sales []model.Sale) (decimal.Decimal, bool) {
	total := decimal.Zero
	priced := false
	for _, s := range sales {
		if s.Quantity == nil || !s.UnitPrice.Valid {
			continue
		}
		total = total.Add(s.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(*s.Quantity))))
		priced = true
	}
	return total, priced
}
