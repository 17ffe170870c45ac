package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/saheltrading/ledger_backend/config"
	"bitbucket.org/saheltrading/ledger_backend/models"
	"bitbucket.org/saheltrading/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// Spins up throwaway MySQL and Redis containers and runs the money and
// stock flows end to end against them.
func TestLedgerFlowsEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "ledger_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "test")

	t.Run("PartnerFundingAndExchange", func(t *testing.T) {
		testPartnerFundingAndExchange(t, ctx)
	})
	t.Run("SaleConsumptionAndReturn", func(t *testing.T) {
		testSaleConsumptionAndReturn(t, ctx)
	})
	t.Run("InvoicePartialPayments", func(t *testing.T) {
		testInvoicePartialPayments(t, ctx)
	})
	t.Run("FreeGoodsOverdraw", func(t *testing.T) {
		testFreeGoodsOverdraw(t, ctx)
	})
	t.Run("CommissionPayoutAndReversal", func(t *testing.T) {
		testCommissionPayoutAndReversal(t, ctx)
	})
}

func testCommissionPayoutAndReversal(t *testing.T, ctx context.Context) {
	shipment := createTestShipment(t, ctx, "Ibuprofen", "B-300", 200)

	employee, err := models.CreateEmployee(ctx, &models.NewEmployee{
		Name:                 "Fatima",
		CommissionPercentage: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	// Three sales worth 1000, 500 and 300 earn commissions of 100, 50, 30.
	var sales []*models.Sale
	for _, qty := range []int{10, 5, 3} {
		sale, err := models.CreateSale(ctx, &models.NewSale{
			EmployeeId: &employee.ID,
			DueDate:    time.Now().UTC().AddDate(0, 0, 30),
			Items: []models.NewSaleItem{{
				InventoryId: shipment.Inventory.ID,
				Quantity:    qty,
				Price:       decimal.NewFromInt(100),
			}},
		})
		if err != nil {
			t.Fatalf("CreateSale qty=%d: %v", qty, err)
		}
		sales = append(sales, sale)
	}

	paidBySale := func() map[int]decimal.Decimal {
		t.Helper()
		commissions, err := models.GetCommissions(ctx, employee.ID)
		if err != nil {
			t.Fatalf("GetCommissions: %v", err)
		}
		result := make(map[int]decimal.Decimal, len(commissions))
		for _, c := range commissions {
			result[c.SaleId] = c.PaidAmount
		}
		return result
	}
	expectPaid := func(want []int64) {
		t.Helper()
		paid := paidBySale()
		for i, sale := range sales {
			if !paid[sale.ID].Equal(decimal.NewFromInt(want[i])) {
				t.Fatalf("sale %d paid = %s, want %d", i+1, paid[sale.ID], want[i])
			}
		}
	}

	// 120 fills the oldest commission and part of the second.
	_, err = models.CreateCommissionPayment(ctx, &models.NewCommissionPayment{
		EmployeeId: employee.ID,
		Amount:     decimal.NewFromInt(120),
	})
	if err != nil {
		t.Fatalf("first payout: %v", err)
	}
	expectPaid([]int64{100, 20, 0})

	// A second payout touches the same second commission.
	payment2, err := models.CreateCommissionPayment(ctx, &models.NewCommissionPayment{
		EmployeeId: employee.ID,
		Amount:     decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("second payout: %v", err)
	}
	expectPaid([]int64{100, 50, 10})

	// Paying beyond the remaining unpaid commission is rejected.
	_, err = models.CreateCommissionPayment(ctx, &models.NewCommissionPayment{
		EmployeeId: employee.ID,
		Amount:     decimal.NewFromInt(21),
	})
	if !errors.Is(err, utils.ErrorInsufficientFunds) {
		t.Fatalf("overpay: got %v, want ErrorInsufficientFunds", err)
	}

	// Deleting the second payout reverses exactly the portions it applied,
	// leaving the first payout's split intact.
	if _, err := models.DeleteCommissionPayment(ctx, payment2.ID); err != nil {
		t.Fatalf("DeleteCommissionPayment: %v", err)
	}
	expectPaid([]int64{100, 20, 0})

	// A return lowers the sale total but leaves the commission frozen.
	_, err = models.CreateReturnedProduct(ctx, &models.NewReturnedProduct{
		SaleItemId: sales[2].Items[0].ID,
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("CreateReturnedProduct: %v", err)
	}
	commissions, err := models.GetCommissions(ctx, employee.ID)
	if err != nil {
		t.Fatalf("GetCommissions after return: %v", err)
	}
	for _, c := range commissions {
		if c.SaleId == sales[2].ID && !c.Amount.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("commission after return = %s, want 30", c.Amount)
		}
	}

	// The monthly per-employee totals reflect the reduced sale.
	now := time.Now().UTC()
	bySale, err := models.GetSalesByEmployee(ctx, now.Month(), now.Year())
	if err != nil {
		t.Fatalf("GetSalesByEmployee: %v", err)
	}
	if !bySale[employee.ID].Equal(decimal.NewFromInt(1700)) {
		t.Fatalf("monthly sales = %s, want 1700", bySale[employee.ID])
	}
}

func testPartnerFundingAndExchange(t *testing.T, ctx context.Context) {
	partner, err := models.CreatePartner(ctx, &models.NewPartner{FullName: "Ahmed"})
	if err != nil {
		t.Fatalf("CreatePartner: %v", err)
	}

	now := time.Now().UTC()
	_, err = models.CreatePartnerTransaction(ctx, &models.NewPartnerTransaction{
		PartnerId:       partner.ID,
		TransactionType: models.PartnerTransactionTypeDeposit,
		CurrencyCode:    models.CurrencyCodeSDG,
		Amount:          decimal.NewFromInt(200000),
		TransactionDate: now,
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Withdrawing more than the deposit must fail and leave the balance intact.
	_, err = models.CreatePartnerTransaction(ctx, &models.NewPartnerTransaction{
		PartnerId:       partner.ID,
		TransactionType: models.PartnerTransactionTypeWithdrawal,
		CurrencyCode:    models.CurrencyCodeSDG,
		Amount:          decimal.NewFromInt(250000),
		TransactionDate: now,
	})
	if !errors.Is(err, utils.ErrorInsufficientFunds) {
		t.Fatalf("over-withdrawal: got %v, want ErrorInsufficientFunds", err)
	}

	balances, err := models.GetPartnerBalances(ctx, partner.ID)
	if err != nil {
		t.Fatalf("GetPartnerBalances: %v", err)
	}
	for _, b := range balances {
		if b.CurrencyCode == models.CurrencyCodeSDG && !b.Balance.Equal(decimal.NewFromInt(200000)) {
			t.Fatalf("SDG partner balance = %s, want 200000", b.Balance)
		}
	}

	// Sell 127500 SDG for 50 USD, then the recorded rate converts back exactly.
	_, err = models.CreateExchange(ctx, &models.NewExchange{
		SoldCurrency:   models.CurrencyCodeSDG,
		BoughtCurrency: models.CurrencyCodeUSD,
		SoldAmount:     decimal.NewFromInt(127500),
		BoughtAmount:   decimal.NewFromInt(50),
		ExchangeDate:   now,
	})
	if err != nil {
		t.Fatalf("CreateExchange: %v", err)
	}

	got := models.ConvertToSDG(ctx, decimal.NewFromInt(50), models.CurrencyCodeUSD)
	if !got.Equal(decimal.NewFromInt(127500)) {
		t.Fatalf("ConvertToSDG(50 USD) = %s, want 127500", got)
	}

	usdBalance, err := models.GetCompanyBalance(ctx, models.CurrencyCodeUSD)
	if err != nil {
		t.Fatalf("GetCompanyBalance(USD): %v", err)
	}
	if !usdBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("USD company balance = %s, want 50", usdBalance)
	}
}

func testSaleConsumptionAndReturn(t *testing.T, ctx context.Context) {
	shipment := createTestShipment(t, ctx, "Paracetamol", "B-100", 100)

	sale, err := models.CreateSale(ctx, &models.NewSale{
		DueDate: time.Now().UTC().AddDate(0, 0, 30),
		Items: []models.NewSaleItem{{
			InventoryId: shipment.Inventory.ID,
			Quantity:    40,
			Price:       decimal.NewFromInt(500),
		}},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("sale total = %s, want 20000", sale.Total)
	}

	inv, err := models.GetInventory(ctx, shipment.Inventory.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Quantity != 60 {
		t.Fatalf("inventory after sale = %d, want 60", inv.Quantity)
	}

	// Returning everything restores the batch and zeroes the sale total.
	_, err = models.CreateReturnedProduct(ctx, &models.NewReturnedProduct{
		SaleItemId: sale.Items[0].ID,
		Quantity:   40,
	})
	if err != nil {
		t.Fatalf("CreateReturnedProduct: %v", err)
	}

	inv, err = models.GetInventory(ctx, shipment.Inventory.ID)
	if err != nil {
		t.Fatalf("GetInventory after return: %v", err)
	}
	if inv.Quantity != 100 {
		t.Fatalf("inventory after return = %d, want 100", inv.Quantity)
	}

	sale2, err := models.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale: %v", err)
	}
	if !sale2.Total.IsZero() {
		t.Fatalf("sale total after full return = %s, want 0", sale2.Total)
	}

	// Returning more than was sold is rejected.
	_, err = models.CreateReturnedProduct(ctx, &models.NewReturnedProduct{
		SaleItemId: sale.Items[0].ID,
		Quantity:   1,
	})
	if !errors.Is(err, utils.ErrorValidation) {
		t.Fatalf("over-return: got %v, want ErrorValidation", err)
	}
}

func testInvoicePartialPayments(t *testing.T, ctx context.Context) {
	shipment := createTestShipment(t, ctx, "Amoxicillin", "B-200", 50)

	sale, err := models.CreateSale(ctx, &models.NewSale{
		DueDate: time.Now().UTC().AddDate(0, 0, 14),
		Items: []models.NewSaleItem{{
			InventoryId: shipment.Inventory.ID,
			Quantity:    10,
			Price:       decimal.NewFromInt(100),
		}},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	invoice := sale.Invoice
	if invoice == nil {
		t.Fatal("sale has no invoice")
	}
	if len(invoice.Number) != 6 {
		t.Fatalf("invoice number %q is not 6 digits", invoice.Number)
	}
	if invoice.Status != models.InvoiceStatusUnpaid {
		t.Fatalf("new invoice status = %s, want unpaid", invoice.Status)
	}

	payment, err := models.CreateInvoicePayment(ctx, &models.NewInvoicePayment{
		InvoiceId: invoice.ID,
		Amount:    decimal.NewFromInt(400),
	})
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	got, err := models.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Status != models.InvoiceStatusPartial {
		t.Fatalf("status after 400/1000 = %s, want partial", got.Status)
	}

	// Paying more than the 600 remaining is rejected.
	_, err = models.CreateInvoicePayment(ctx, &models.NewInvoicePayment{
		InvoiceId: invoice.ID,
		Amount:    decimal.NewFromInt(700),
	})
	if !errors.Is(err, utils.ErrorInsufficientFunds) {
		t.Fatalf("overpayment: got %v, want ErrorInsufficientFunds", err)
	}

	_, err = models.CreateInvoicePayment(ctx, &models.NewInvoicePayment{
		InvoiceId: invoice.ID,
		Amount:    decimal.NewFromInt(600),
	})
	if err != nil {
		t.Fatalf("settling payment: %v", err)
	}
	got, err = models.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Status != models.InvoiceStatusPaid {
		t.Fatalf("status after full payment = %s, want paid", got.Status)
	}

	// Deleting the first payment drops the invoice back to partial.
	if _, err := models.DeleteInvoicePayment(ctx, payment.ID); err != nil {
		t.Fatalf("DeleteInvoicePayment: %v", err)
	}
	got, err = models.GetInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Status != models.InvoiceStatusPartial {
		t.Fatalf("status after payment delete = %s, want partial", got.Status)
	}

	remaining, err := models.GetInvoiceRemainingAmount(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("GetInvoiceRemainingAmount: %v", err)
	}
	if !remaining.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("remaining = %s, want 400", remaining)
	}
}

func testFreeGoodsOverdraw(t *testing.T, ctx context.Context) {
	shipment := createTestShipment(t, ctx, "Ibuprofen", "B-300", 10)

	// 10 paid units with 10% free goods needs 11 units from a 10-unit batch.
	_, err := models.CreateSale(ctx, &models.NewSale{
		DueDate: time.Now().UTC().AddDate(0, 0, 7),
		Items: []models.NewSaleItem{{
			InventoryId:       shipment.Inventory.ID,
			Quantity:          10,
			Price:             decimal.NewFromInt(100),
			FreeGoodsDiscount: decimal.NewFromInt(10),
		}},
	})
	if !errors.Is(err, utils.ErrorInsufficientInventory) {
		t.Fatalf("overdraw: got %v, want ErrorInsufficientInventory", err)
	}

	// The failed sale must not have consumed anything.
	inv, err := models.GetInventory(ctx, shipment.Inventory.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Quantity != 10 {
		t.Fatalf("inventory after rejected sale = %d, want 10", inv.Quantity)
	}
}

func createTestShipment(t *testing.T, ctx context.Context, productName, batch string, qty int) *models.Shipment {
	t.Helper()

	product, err := models.CreateProduct(ctx, &models.NewProduct{Name: productName})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: productName + " supplier"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	shipment, err := models.CreateShipment(ctx, &models.NewShipment{
		ProductId:   product.ID,
		SupplierId:  supplier.ID,
		Quantity:    qty,
		CostUsd:     decimal.NewFromInt(1),
		SaleUsd:     decimal.NewFromInt(2),
		BatchNumber: batch,
		ExpiryDate:  time.Now().UTC().AddDate(2, 0, 0),
	})
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	if shipment.Inventory == nil {
		t.Fatal("shipment has no inventory")
	}
	return shipment
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("ledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=ledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
