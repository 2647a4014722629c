package controllers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mobileshop-backend/cache"
	"mobileshop-backend/config"
	"mobileshop-backend/controllers"
	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/models"
	"mobileshop-backend/routes"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	events *events.MemoryPublisher
	owner  string
	staff  string
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db

	middlewares.ConfigureJWT("test-secret", time.Hour)
	pub := events.NewMemoryPublisher()
	controllers.Configure(controllers.Dependencies{Publisher: pub, CurrencySymbol: "₹"})

	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler, Immutable: true})
	routes.Register(app)

	env := &testEnv{app: app, db: db, events: pub}
	env.owner = env.token(t, models.RoleOwner)
	env.staff = env.token(t, models.RoleStaff)
	return env
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	tok, err := middlewares.GenerateJWT("user-"+role, role)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, out
}

func (e *testEnv) product(t *testing.T, p models.Product) models.Product {
	t.Helper()
	p.Active = true
	if err := e.db.Create(&p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	var p models.Product
	if err := e.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.Stock
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func obj(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

func TestCreateBill_Sales(t *testing.T) {
	env := setup(t)
	phone := env.product(t, models.Product{Name: "Galaxy A15", SellPrice: 1000, CostPrice: 800, TaxRatePercent: 18, Stock: 5})

	resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind":           "sales",
		"customer_name":  "Asha",
		"customer_phone": "9876543210",
		"payment_method": "cash",
		"items":          []map[string]any{{"product_id": phone.Id, "quantity": "2"}},
		"adjustment":     map[string]any{"discount_kind": "percent", "discount_value": 10},
		"amount_prepaid": "500",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	s := obj(body, "summary")
	want := map[string]float64{
		"subtotal_gross":       2000,
		"bill_discount_amount": 200,
		"taxable_base":         1800,
		"tax_total":            360,
		"tax_half_a":           180,
		"tax_half_b":           180,
		"grand_total":          2160,
		"balance_due":          1660,
	}
	for k, v := range want {
		if num(s, k) != v {
			t.Errorf("summary[%s] = %v, want %v", k, num(s, k), v)
		}
	}

	bill := obj(body, "bill")
	number, _ := bill["bill_number"].(string)
	if want := "SB-" + time.Now().UTC().Format("20060102") + "-0001"; number != want {
		t.Errorf("bill number = %q, want %q", number, want)
	}
	if got := obj(body, "formatted")["grand_total"]; got != "₹2,160.00" {
		t.Errorf("formatted grand total = %v", got)
	}
	if got := env.stock(t, phone.Id); got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}

	var customers int64
	env.db.Model(&models.Customer{}).Where("phone = ?", "9876543210").Count(&customers)
	if customers != 1 {
		t.Errorf("customer not upserted")
	}

	var items []models.BillItem
	env.db.Find(&items)
	if len(items) != 1 || items[0].CostPrice != 800 || items[0].Tax != 360 || items[0].Description != "Galaxy A15" {
		t.Errorf("items = %+v", items)
	}

	if n := len(env.events.OfType(events.EventTypeBillSaved)); n != 1 {
		t.Errorf("bill.saved events = %d, want 1", n)
	}
}

func TestCreateBill_NumbersIncrement(t *testing.T) {
	env := setup(t)
	req := map[string]any{
		"kind":           "sales",
		"customer_name":  "Walk-in",
		"payment_method": "upi",
		"items":          []map[string]any{{"description": "Tempered glass", "quantity": 1, "unit_price": 199}},
	}
	env.do(t, http.MethodPost, "/api/bills", env.staff, req)
	_, body := env.do(t, http.MethodPost, "/api/bills", env.staff, req)

	number, _ := obj(body, "bill")["bill_number"].(string)
	if want := "SB-" + time.Now().UTC().Format("20060102") + "-0002"; number != want {
		t.Errorf("second bill number = %q, want %q", number, want)
	}
}

func TestCreateBill_Preconditions(t *testing.T) {
	env := setup(t)
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{
			"no active lines",
			map[string]any{"kind": "sales", "customer_name": "Asha", "payment_method": "cash",
				"items": []map[string]any{{"description": "x", "quantity": 0, "unit_price": 100}}},
			"items",
		},
		{
			"half-entered draft does not count",
			map[string]any{"kind": "sales", "customer_name": "Asha", "payment_method": "cash",
				"draft": map[string]any{"description": "x", "quantity": 2}},
			"items",
		},
		{
			"missing customer",
			map[string]any{"kind": "sales", "payment_method": "cash",
				"items": []map[string]any{{"description": "x", "quantity": 1, "unit_price": 100}}},
			"customer_name",
		},
		{
			"service without id",
			map[string]any{"kind": "service", "customer_name": "Asha", "payment_method": "cash",
				"items": []map[string]any{{"description": "x", "quantity": 1, "unit_price": 100}}},
			"service_id",
		},
		{
			"unknown payment method",
			map[string]any{"kind": "sales", "customer_name": "Asha", "payment_method": "barter",
				"items": []map[string]any{{"description": "x", "quantity": 1, "unit_price": 100}}},
			"payment_method",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, tt.body)
			if resp.StatusCode != fiber.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
			}
			if _, ok := obj(body, "errors")[tt.field]; !ok {
				t.Errorf("errors = %v, want field %q", body["errors"], tt.field)
			}
		})
	}

	var bills int64
	env.db.Model(&models.Bill{}).Count(&bills)
	if bills != 0 {
		t.Errorf("bills saved = %d, want 0", bills)
	}
	if n := len(env.events.Events()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestCreateBill_InsufficientStockRollsBack(t *testing.T) {
	env := setup(t)
	a := env.product(t, models.Product{Name: "Charger", SellPrice: 500, Stock: 10})
	b := env.product(t, models.Product{Name: "Earbuds", SellPrice: 1500, Stock: 1})

	resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind":           "sales",
		"customer_name":  "Ravi",
		"customer_phone": "9000000001",
		"payment_method": "card",
		"items": []map[string]any{
			{"product_id": a.Id, "quantity": 2},
			{"product_id": b.Id, "quantity": 2},
		},
	})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if got := env.stock(t, a.Id); got != 10 {
		t.Errorf("stock of %s = %d, want 10 after rollback", a.Name, got)
	}
	var customers int64
	env.db.Model(&models.Customer{}).Count(&customers)
	if customers != 0 {
		t.Errorf("customer upsert was not rolled back")
	}
	if n := len(env.events.Events()); n != 0 {
		t.Errorf("events published for a failed bill: %d", n)
	}
}

func TestCreateBill_SecondHandRequiresSecondHandProduct(t *testing.T) {
	env := setup(t)
	fresh := env.product(t, models.Product{Name: "iPhone 13", SellPrice: 40000, Stock: 1})
	used := env.product(t, models.Product{Name: "iPhone 11 (used)", Condition: models.ConditionSecondHand, SellPrice: 18000, Stock: 1})

	req := func(id string) map[string]any {
		return map[string]any{
			"kind": "second_hand", "customer_name": "Imran", "payment_method": "cash",
			"items": []map[string]any{{"product_id": id, "quantity": 1}},
		}
	}
	if resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, req(fresh.Id)); resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("new product on second-hand bill: status = %d, body = %v", resp.StatusCode, body)
	}
	resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, req(used.Id))
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if number, _ := obj(body, "bill")["bill_number"].(string); number[:3] != "SH-" {
		t.Errorf("bill number = %q, want SH- prefix", number)
	}
	if got := env.stock(t, used.Id); got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
}

func TestPreviewBill(t *testing.T) {
	env := setup(t)
	resp, body := env.do(t, http.MethodPost, "/api/bills/preview", env.staff, map[string]any{
		"kind":       "sales",
		"items":      []map[string]any{{"description": "Case", "quantity": 1, "unit_price": 100, "tax_rate_percent": 18}},
		"draft":      map[string]any{"description": "Cable", "quantity": "", "unit_price": 250},
		"adjustment": map[string]any{"tax_override_percent": 5},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	s := obj(body, "summary")
	if num(s, "subtotal_gross") != 100 || num(s, "tax_total") != 5 || num(s, "grand_total") != 105 {
		t.Errorf("summary = %v", s)
	}

	var bills int64
	env.db.Model(&models.Bill{}).Count(&bills)
	if bills != 0 {
		t.Errorf("preview saved a bill")
	}
}

func TestPayments(t *testing.T) {
	env := setup(t)
	_, body := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind":           "sales",
		"customer_name":  "Meena",
		"payment_method": "credit",
		"items":          []map[string]any{{"description": "Battery", "quantity": 1, "unit_price": 1000}},
		"amount_prepaid": 400,
	})
	number, _ := obj(body, "bill")["bill_number"].(string)
	path := "/api/bills/" + number + "/payments"

	if resp, b := env.do(t, http.MethodPost, path, env.staff, map[string]any{"amount": 700, "method": "cash"}); resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("overpayment: status = %d, body = %v", resp.StatusCode, b)
	}
	if resp, b := env.do(t, http.MethodPost, path, env.staff, map[string]any{"amount": 100, "method": "credit"}); resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("credit payment: status = %d, body = %v", resp.StatusCode, b)
	}

	resp, b := env.do(t, http.MethodPost, path, env.staff, map[string]any{"amount": 250.5, "method": "upi", "reference": "UPI123"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, b)
	}
	if num(b, "balance_due") != 349.5 || num(b, "paid_total") != 250.5 {
		t.Errorf("rollup = %v", b)
	}

	_, list := env.do(t, http.MethodGet, path, env.staff, nil)
	if p, _ := list["payments"].([]any); len(p) != 1 {
		t.Errorf("payments = %v", list["payments"])
	}

	_, unpaid := env.do(t, http.MethodGet, "/api/bills?unpaid=true", env.staff, nil)
	if num(unpaid, "total") != 1 {
		t.Errorf("unpaid bills = %v", unpaid["total"])
	}

	if n := len(env.events.OfType(events.EventTypePaymentRecorded)); n != 1 {
		t.Errorf("payment events = %d, want 1", n)
	}
}

func TestPaymentAfterConcurrentPayment(t *testing.T) {
	env := setup(t)
	_, body := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind":           "sales",
		"customer_name":  "Farah",
		"payment_method": "credit",
		"items":          []map[string]any{{"description": "Screen guard", "quantity": 1, "unit_price": 600}},
	})
	number, _ := obj(body, "bill")["bill_number"].(string)

	// another payment lands between reading the bill and updating it
	raced := false
	if err := env.db.Callback().Update().Before("gorm:update").Register("test:concurrent_payment", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "bills" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE bills SET paid_total = paid_total + 500, balance_due = balance_due - 500")
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = env.db.Callback().Update().Remove("test:concurrent_payment") })

	resp, b := env.do(t, http.MethodPost, "/api/bills/"+number+"/payments", env.staff, map[string]any{"amount": 400, "method": "cash"})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, body = %v, want 409", resp.StatusCode, b)
	}
	if !raced {
		t.Fatalf("concurrent update never ran")
	}

	var payments int64
	env.db.Model(&models.Payment{}).Count(&payments)
	if payments != 0 {
		t.Errorf("payments = %d, want 0 after conflict", payments)
	}
	if n := len(env.events.OfType(events.EventTypePaymentRecorded)); n != 0 {
		t.Errorf("payment events = %d, want 0", n)
	}
}

func TestServiceRecordLifecycle(t *testing.T) {
	env := setup(t)

	resp, rec := env.do(t, http.MethodPost, "/api/service-records", env.staff, map[string]any{
		"customer_name":  "Kiran",
		"customer_phone": "9111111111",
		"device_model":   "Redmi Note 12",
		"issue":          "Broken display",
		"labor_charge":   500,
		"advance_paid":   300,
		"parts": []map[string]any{
			{"description": "Display assembly", "quantity": 1, "unit_price": 1500, "tax_rate_percent": 18},
		},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: status = %d, body = %v", resp.StatusCode, rec)
	}
	serviceID, _ := rec["service_id"].(string)
	if serviceID != "SRV-00001" {
		t.Fatalf("service id = %q", serviceID)
	}

	resp, lookup := env.do(t, http.MethodGet, "/api/service-records/lookup?service_id=srv-00001&phone=9111111111", env.staff, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("lookup: status = %d, body = %v", resp.StatusCode, lookup)
	}
	if lines, _ := lookup["lines"].([]any); len(lines) != 1 {
		t.Errorf("lines = %v", lookup["lines"])
	}
	if s := obj(lookup, "summary"); num(s, "grand_total") != 2270 || num(s, "balance_due") != 1970 {
		t.Errorf("lookup summary = %v", s)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/service-records/lookup?service_id=SRV-00001&phone=9000000000", env.staff, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("mismatched phone: status = %d, want 404", resp.StatusCode)
	}

	resp, upd := env.do(t, http.MethodPatch, "/api/service-records/"+serviceID, env.staff, map[string]any{"status": "ready"})
	if resp.StatusCode != fiber.StatusOK || upd["status"] != "ready" {
		t.Fatalf("update: status = %d, body = %v", resp.StatusCode, upd)
	}

	// bill with no lines takes the fitted parts and the record's labor and advance
	resp, bill := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind":           "service",
		"service_id":     serviceID,
		"payment_method": "upi",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("bill: status = %d, body = %v", resp.StatusCode, bill)
	}
	s := obj(bill, "summary")
	if num(s, "subtotal_gross") != 2000 || num(s, "tax_total") != 270 || num(s, "balance_due") != 1970 {
		t.Errorf("service summary = %v", s)
	}
	b := obj(bill, "bill")
	if b["customer_name"] != "Kiran" || num(b, "labor_charge") != 500 {
		t.Errorf("bill = %v", b)
	}
	if items, _ := b["items"].([]any); len(items) != 2 {
		t.Errorf("items = %v, want part + labor", b["items"])
	}

	var stored models.ServiceRecord
	env.db.First(&stored, "service_id = ?", serviceID)
	if stored.Status != models.ServiceDelivered || stored.BillID == nil {
		t.Errorf("record after billing = %+v", stored)
	}

	if resp, body := env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind": "service", "service_id": serviceID, "payment_method": "cash",
	}); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("second bill: status = %d, body = %v", resp.StatusCode, body)
	}
	if resp, _ := env.do(t, http.MethodPatch, "/api/service-records/"+serviceID, env.staff, map[string]any{"issue": "x"}); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("edit closed record: status = %d, want 409", resp.StatusCode)
	}
	if n := len(env.events.OfType(events.EventTypeServiceStatusChanged)); n != 3 {
		t.Errorf("status events = %d, want 3 (received, ready, delivered)", n)
	}
}

func TestServiceStatusChangeEvent(t *testing.T) {
	env := setup(t)
	_, rec := env.do(t, http.MethodPost, "/api/service-records", env.staff, map[string]any{
		"customer_name": "Ravi", "customer_phone": "9333333333", "device_model": "iPhone 11", "issue": "Battery",
	})
	serviceID, _ := rec["service_id"].(string)

	resp, upd := env.do(t, http.MethodPatch, "/api/service-records/"+serviceID, env.staff, map[string]any{"status": "in_progress"})
	if resp.StatusCode != fiber.StatusOK || upd["status"] != "in_progress" {
		t.Fatalf("update: status = %d, body = %v", resp.StatusCode, upd)
	}
	evts := env.events.OfType(events.EventTypeServiceStatusChanged)
	if len(evts) != 2 {
		t.Fatalf("status events = %d, want 2", len(evts))
	}
	var data map[string]any
	if err := json.Unmarshal(evts[1].Data, &data); err != nil {
		t.Fatalf("event data: %v", err)
	}
	if data["from"] != "received" || data["status"] != "in_progress" || evts[1].Key != serviceID {
		t.Errorf("event = %s %s", evts[1].Key, evts[1].Data)
	}

	// same status again is not a transition
	env.do(t, http.MethodPatch, "/api/service-records/"+serviceID, env.staff, map[string]any{"status": "in_progress"})
	if n := len(env.events.OfType(events.EventTypeServiceStatusChanged)); n != 2 {
		t.Errorf("status events after no-op = %d, want 2", n)
	}
}

func TestPhoneLookupCache(t *testing.T) {
	env := setup(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	controllers.Configure(controllers.Dependencies{Cache: cache.NewWithClient(rdb, time.Minute, nil)})
	t.Cleanup(func() { controllers.Configure(controllers.Dependencies{}) })

	intake := func(device string) string {
		t.Helper()
		resp, rec := env.do(t, http.MethodPost, "/api/service-records", env.staff, map[string]any{
			"customer_name": "Meena", "customer_phone": "9444444444", "device_model": device, "issue": "Screen",
		})
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("intake: status = %d, body = %v", resp.StatusCode, rec)
		}
		id, _ := rec["service_id"].(string)
		return id
	}
	lookup := func() string {
		t.Helper()
		resp, body := env.do(t, http.MethodGet, "/api/service-records/lookup?phone=9444444444", env.staff, nil)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("lookup: status = %d, body = %v", resp.StatusCode, body)
		}
		id, _ := obj(body, "record")["service_id"].(string)
		return id
	}

	first := intake("Pixel 6")
	if got := lookup(); got != first {
		t.Fatalf("lookup = %q, want %q", got, first)
	}
	if !mr.Exists(cache.LookupKey("", "9444444444")) {
		t.Fatalf("phone lookup was not cached")
	}

	second := intake("Pixel 7")
	if got := lookup(); got != second {
		t.Errorf("lookup after second intake = %q, want newest %q", got, second)
	}

	// closing the newest record falls back to the older open one
	if resp, _ := env.do(t, http.MethodPatch, "/api/service-records/"+second, env.staff, map[string]any{"status": "cancelled"}); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cancel: status = %d", resp.StatusCode)
	}
	if got := lookup(); got != first {
		t.Errorf("lookup after cancel = %q, want %q", got, first)
	}
}

func TestDeliveredOnlyThroughBill(t *testing.T) {
	env := setup(t)
	_, rec := env.do(t, http.MethodPost, "/api/service-records", env.staff, map[string]any{
		"customer_name": "Leela", "customer_phone": "9222222222", "device_model": "Moto G", "issue": "Charging port",
	})
	serviceID, _ := rec["service_id"].(string)
	resp, _ := env.do(t, http.MethodPatch, "/api/service-records/"+serviceID, env.staff, map[string]any{"status": "delivered"})
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestPurchaseIncrementsStock(t *testing.T) {
	env := setup(t)
	p := env.product(t, models.Product{Name: "USB-C cable", SellPrice: 299, CostPrice: 100, Stock: 2})

	resp, dealer := env.do(t, http.MethodPost, "/api/dealers", env.staff, map[string]any{"name": "Metro Distributors", "phone": "080123456"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("dealer: status = %d, body = %v", resp.StatusCode, dealer)
	}

	resp, purchase := env.do(t, http.MethodPost, "/api/purchases", env.staff, map[string]any{
		"dealer_id": num(dealer, "id"),
		"items":     []map[string]any{{"product_id": p.Id, "quantity": 10, "unit_cost": 90.5}},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("purchase: status = %d, body = %v", resp.StatusCode, purchase)
	}
	if num(purchase, "total") != 905 {
		t.Errorf("total = %v, want 905", purchase["total"])
	}
	if number, _ := purchase["purchase_number"].(string); number[:3] != "PO-" {
		t.Errorf("purchase number = %q", number)
	}

	var stored models.Product
	env.db.First(&stored, "id = ?", p.Id)
	if stored.Stock != 12 || stored.CostPrice != 90.5 {
		t.Errorf("product after purchase = %+v", stored)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/purchases", env.staff, map[string]any{
		"dealer_id": num(dealer, "id"),
		"items":     []map[string]any{{"product_id": "missing", "quantity": 1, "unit_cost": 1}},
	})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("unknown product: status = %d", resp.StatusCode)
	}
	if n := len(env.events.OfType(events.EventTypePurchaseRecorded)); n != 1 {
		t.Errorf("purchase events = %d, want 1", n)
	}
}

func TestProducts(t *testing.T) {
	env := setup(t)
	resp, body := env.do(t, http.MethodPost, "/api/products", env.staff, []map[string]any{
		{"name": " Pixel 8 ", "category": "phone", "sell_price": 52000, "cost_price": 47000, "tax_rate_percent": 18, "stock": 4, "low_stock_threshold": 1},
		{"name": "Pixel 6 (used)", "category": "phone", "condition": "second_hand", "sell_price": 15000, "stock": 1, "low_stock_threshold": 1},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	resp, invalid := env.do(t, http.MethodPost, "/api/products", env.staff, []map[string]any{{"name": "Bad", "sell_price": 0}})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Errorf("invalid product: status = %d, body = %v", resp.StatusCode, invalid)
	}

	_, low := env.do(t, http.MethodGet, "/api/products?low_stock=true", env.staff, nil)
	list, _ := low["products"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["name"] != "Pixel 6 (used)" {
		t.Errorf("low stock = %v", low["products"])
	}

	_, used := env.do(t, http.MethodGet, "/api/products?condition=second_hand", env.staff, nil)
	if l, _ := used["products"].([]any); len(l) != 1 {
		t.Errorf("second-hand filter = %v", used["products"])
	}

	_, all := env.do(t, http.MethodGet, "/api/products?q=pixel%208", env.staff, nil)
	items, _ := all["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("search = %v", all["products"])
	}
	id, _ := items[0].(map[string]any)["id"].(string)
	if items[0].(map[string]any)["name"] != "Pixel 8" {
		t.Errorf("name not trimmed: %v", items[0])
	}

	resp, upd := env.do(t, http.MethodPatch, "/api/products/"+id, env.staff, map[string]any{"sell_price": 49999.999, "stock": 0})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update: status = %d, body = %v", resp.StatusCode, upd)
	}
	if num(upd, "sell_price") != 50000 || num(upd, "stock") != 0 {
		t.Errorf("updated = %v", upd)
	}
}

func TestCustomers(t *testing.T) {
	env := setup(t)
	resp, _ := env.do(t, http.MethodPost, "/api/customers", env.staff, map[string]any{"name": "Sara", "phone": "9333333333"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/customers", env.staff, map[string]any{"name": "Other", "phone": "9333333333"}); resp.StatusCode != fiber.StatusConflict {
		t.Errorf("duplicate phone: status = %d", resp.StatusCode)
	}

	resp, got := env.do(t, http.MethodGet, "/api/customers/9333333333", env.staff, nil)
	if resp.StatusCode != fiber.StatusOK || obj(got, "customer")["name"] != "Sara" {
		t.Errorf("get = %d %v", resp.StatusCode, got)
	}
	if resp, _ := env.do(t, http.MethodGet, "/api/customers/0000", env.staff, nil); resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("missing customer: status = %d", resp.StatusCode)
	}

	_, list := env.do(t, http.MethodGet, "/api/customers?q=sar", env.staff, nil)
	if l, _ := list["customers"].([]any); len(l) != 1 {
		t.Errorf("search = %v", list["customers"])
	}
}

func TestDashboard(t *testing.T) {
	env := setup(t)
	p := env.product(t, models.Product{Name: "Power bank", SellPrice: 1000, CostPrice: 750, Stock: 3, LowStockThreshold: 2})
	env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind": "sales", "customer_name": "Anil", "payment_method": "cash",
		"items": []map[string]any{{"product_id": p.Id, "quantity": 1}},
	})

	if resp, _ := env.do(t, http.MethodGet, "/api/dashboard", env.staff, nil); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("staff dashboard: status = %d, want 403", resp.StatusCode)
	}

	resp, d := env.do(t, http.MethodGet, "/api/dashboard", env.owner, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, d)
	}
	if num(d, "bill_count") != 1 || num(d, "sales_total") != 1000 || num(d, "outstanding_balance") != 1000 {
		t.Errorf("dashboard = %v", d)
	}
	if num(d, "average_margin_percent") != 25 {
		t.Errorf("margin = %v, want 25", d["average_margin_percent"])
	}
	if num(d, "low_stock_count") != 1 {
		t.Errorf("low stock = %v, want 1", d["low_stock_count"])
	}
}

func TestIdempotentBillCreate(t *testing.T) {
	env := setup(t)
	req := map[string]any{
		"kind": "sales", "customer_name": "Dev", "payment_method": "cash",
		"items": []map[string]any{{"description": "Screen guard", "quantity": 1, "unit_price": 150}},
	}
	first, _ := env.do(t, http.MethodPost, "/api/bills", env.staff, req, "Idempotency-Key", "bill-1")
	second, _ := env.do(t, http.MethodPost, "/api/bills", env.staff, req, "Idempotency-Key", "bill-1")
	if first.StatusCode != fiber.StatusCreated || second.StatusCode != fiber.StatusCreated {
		t.Fatalf("statuses = %d, %d", first.StatusCode, second.StatusCode)
	}
	if second.Header.Get("Idempotent-Replayed") != "true" {
		t.Errorf("second response was not replayed")
	}
	var bills int64
	env.db.Model(&models.Bill{}).Count(&bills)
	if bills != 1 {
		t.Errorf("bills = %d, want 1", bills)
	}
}

func TestAuthFlow(t *testing.T) {
	env := setup(t)
	reg := map[string]any{
		"first_name": "Owner", "email": "Owner@Shop.test",
		"password": "s3cret-pass", "password_confirm": "s3cret-pass",
	}
	resp, body := env.do(t, http.MethodPost, "/api/registration", "", reg)
	if resp.StatusCode != fiber.StatusCreated || body["role"] != models.RoleOwner {
		t.Fatalf("register: status = %d, body = %v", resp.StatusCode, body)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/registration", "", reg); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("second registration: status = %d, want 403", resp.StatusCode)
	}

	if resp, _ := env.do(t, http.MethodPost, "/api/login", "", map[string]any{"email": "owner@shop.test", "password": "wrong"}); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("bad password: status = %d", resp.StatusCode)
	}
	resp, login := env.do(t, http.MethodPost, "/api/login", "", map[string]any{"email": "owner@shop.test", "password": "s3cret-pass"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login: status = %d, body = %v", resp.StatusCode, login)
	}
	token, _ := login["token"].(string)

	resp, me := env.do(t, http.MethodGet, "/api/me", token, nil)
	if resp.StatusCode != fiber.StatusOK || me["email"] != "owner@shop.test" {
		t.Errorf("me = %d %v", resp.StatusCode, me)
	}

	staff := map[string]any{
		"first_name": "Clerk", "email": "clerk@shop.test",
		"password": "another-pass", "password_confirm": "another-pass",
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/users", env.staff, staff); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("staff creating users: status = %d, want 403", resp.StatusCode)
	}
	resp, created := env.do(t, http.MethodPost, "/api/users", token, staff)
	if resp.StatusCode != fiber.StatusCreated || created["role"] != models.RoleStaff {
		t.Errorf("create staff: status = %d, body = %v", resp.StatusCode, created)
	}

	if resp, _ := env.do(t, http.MethodGet, "/api/bills", "", nil); resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", resp.StatusCode)
	}
}

func TestRegistrationRace(t *testing.T) {
	env := setup(t)

	// another first registration commits after the user count was taken
	raced := false
	if err := env.db.Callback().Create().Before("gorm:create").Register("test:concurrent_registration", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "users" {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO users (id, first_name, last_name, password, email, role, bootstrap_owner, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			"other-owner", "Other", "", []byte("x"), "other@shop.test", models.RoleOwner, true, time.Now().UTC(),
		)
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = env.db.Callback().Create().Remove("test:concurrent_registration") })

	resp, body := env.do(t, http.MethodPost, "/api/registration", "", map[string]any{
		"first_name": "Second", "email": "second@shop.test",
		"password": "s3cret-pass", "password_confirm": "s3cret-pass",
	})
	if !raced {
		t.Fatalf("concurrent registration never ran")
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, body = %v, want 403", resp.StatusCode, body)
	}
}

func TestSingleBootstrapOwner(t *testing.T) {
	env := setup(t)
	yes := true
	first := models.User{FirstName: "A", Email: "a@shop.test", Password: []byte("x"), Role: models.RoleOwner, BootstrapOwner: &yes}
	if err := env.db.Create(&first).Error; err != nil {
		t.Fatalf("first owner: %v", err)
	}
	second := models.User{FirstName: "B", Email: "b@shop.test", Password: []byte("x"), Role: models.RoleOwner, BootstrapOwner: &yes}
	if err := env.db.Create(&second).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("second bootstrap owner err = %v, want ErrDuplicatedKey", err)
	}
	for _, email := range []string{"c@shop.test", "d@shop.test"} {
		if err := env.db.Create(&models.User{FirstName: "S", Email: email, Password: []byte("x")}).Error; err != nil {
			t.Errorf("staff %s: %v", email, err)
		}
	}
}

func TestExportBills(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodPost, "/api/bills", env.staff, map[string]any{
		"kind": "sales", "customer_name": "Nisha", "payment_method": "card",
		"items": []map[string]any{{"description": "Back cover", "quantity": 2, "unit_price": 250, "tax_rate_percent": 18}},
	})

	if resp, _ := env.do(t, http.MethodGet, "/api/bills/export", env.staff, nil); resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("staff export: status = %d, want 403", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bills/export?kind=sales", nil)
	req.Header.Set("Authorization", "Bearer "+env.owner)
	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Bills")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want heading + 1 bill", len(rows))
	}
	if rows[0][0] != "Bill Number" || rows[1][3] != "Nisha" || rows[1][13] != "590" {
		t.Errorf("rows = %v", rows)
	}
}
