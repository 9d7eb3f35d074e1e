package service

import (
	"fmt"
	"strings"

	"floraledger/internal/model"

	"github.com/shopspring/decimal"
)

// User-facing replies. The shop works in Spanish.
const (
	msgGreeting         = "Hola, soy tu bot de ventas y gastos para la floristería 🌸"
	msgUnauthorized     = "Tu ID de usuario de Telegram es: %d\nCompártelo con el administrador para que te dé acceso."
	msgBadFormat        = "Formato incorrecto. Usa: %s"
	msgNotFound         = "❌ Transacción no encontrada."
	msgGenericError     = "❌ Hubo un error al procesar tu solicitud. El desarrollador ha sido notificado, por favor intenta más tarde."
	msgNothingExtracted = "No se encontró ninguna venta ni gasto en el mensaje."
	msgSaved            = "✅ ID de Transacción guardada correctamente."
	msgDeleted          = "✅ ID de Transacción eliminada correctamente."
	msgEdited           = "✅ ID de Transacción actualizada correctamente."
	msgNoClosureData    = "No hay datos para el cierre de hoy."
	msgNoInventory      = "No se encontraron entradas válidas para el inventario en el mensaje."
	msgNoLoss           = "No se encontraron entradas válidas para la pérdida en el mensaje."
	msgInventoryUpdated = "✅ Inventario actualizado con %d entradas."
	msgLossRecorded     = "✅ Inventario actualizado. Se registró la pérdida de %d entradas."
)

var commandUsage = map[string]string{
	actionDelete:  "eliminar <transaction_id> <nombre del usuario>",
	actionEdit:    "editar <transaction_id> <nuevo mensaje>",
	actionClosure: "cierre <nombre del usuario>",
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatClosureReport renders the cash register summary of a day.
func FormatClosureReport(report *model.ClosureReport) string {
	var b strings.Builder
	b.WriteString("🔔 Resumen del cierre de caja:\n\n")
	fmt.Fprintf(&b, "🏦 Ventas por transferencia bancaria: %s\n", money(report.TransferSales))
	fmt.Fprintf(&b, "💵 Ventas en efectivo: %s\n", money(report.CashSales))
	fmt.Fprintf(&b, "💰 Gastos del día: %s\n", money(report.TotalExpenses))
	fmt.Fprintf(&b, "💵 Total efectivo en caja: %s", money(report.CashOnHand()))
	return b.String()
}

// FormatSummary describes a stored transaction without the extractor.
func FormatSummary(tx *model.Transaction) string {
	var b strings.Builder
	b.WriteString("📝 Resumen de la operación:\n")
	for _, sale := range tx.Sales {
		fmt.Fprintf(&b, "- Venta: %d %s (%s)", sale.Qty(), sale.Item, qualityLabel(sale.Quality))
		if sale.UnitPrice.Valid {
			fmt.Fprintf(&b, " a %s c/u", money(sale.UnitPrice.Decimal))
		}
		b.WriteString("\n")
	}
	if tx.TotalSalePrice.Valid {
		fmt.Fprintf(&b, "- Total de venta: %s", money(tx.TotalSalePrice.Decimal))
		if tx.PaymentMethod != nil {
			fmt.Fprintf(&b, " (%s)", paymentLabel(*tx.PaymentMethod))
		}
		b.WriteString("\n")
	}
	for _, e := range tx.Expenses {
		fmt.Fprintf(&b, "- Gasto: %s %s\n", e.Description, money(e.Amount))
	}
	fmt.Fprintf(&b, "- Fecha: %s", tx.Date)
	return b.String()
}

func formatIssues(header string, issues []model.InventoryIssue) string {
	lines := make([]string, 0, len(issues)+1)
	lines = append(lines, header)
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", issue.Item, issue.Quality, issueLabel(issue.Reason)))
	}
	return strings.Join(lines, "\n")
}

func formatAdminNotice(actor Actor, action, detail string) string {
	return fmt.Sprintf("🔔 Notificación de administración:\n\nOperación realizada por %s (ID: %d)\nAcción: %s\n%s",
		actor.UserName, actor.UserID, action, detail)
}

func formatErrorReport(actor Actor, action string, err error) string {
	return fmt.Sprintf("🚨 Error Report:\n\nUser: %s (ID: %d)\nAction: %s\nError: %v", actor.UserName, actor.UserID, action, err)
}

func qualityLabel(q string) string {
	if q == model.QualitySpecial {
		return "especial"
	}
	return "regular"
}

func paymentLabel(p string) string {
	if p == model.PaymentMethodBankTransfer {
		return "transferencia"
	}
	return "efectivo"
}

func issueLabel(reason string) string {
	switch reason {
	case model.IssueReasonNotInInventory:
		return "no existe en inventario"
	case model.IssueReasonInsufficient:
		return "no hay suficiente inventario"
	}
	return reason
}
