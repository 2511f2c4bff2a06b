package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cicekpazari/orderservice/pkg/client"
	"github.com/cicekpazari/orderservice/pkg/model"
	"github.com/cicekpazari/orderservice/pkg/repository"
	"github.com/cicekpazari/orderservice/pkg/schedule"
	"github.com/cicekpazari/orderservice/pkg/timeutil"
)

const (
	batchLimit    = 50
	fallbackLimit = 200

	// Pass 0 selection window: old enough that the customer is not mid
	// checkout, young enough that the token query set stays bounded.
	stuckMinAge = 10 * time.Minute
	stuckMaxAge = 24 * time.Hour

	// Pass 1 safety net window.
	legacyWindow = 60 * 24 * time.Hour

	// Pass 2 fallback scan window for non-canonical delivery dates.
	fallbackScanWindow = 14 * 24 * time.Hour
)

// EventPublisher receives a best-effort event after every automated
// transition.
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, ev model.OrderStatusEvent)
}

// Result is the observable summary of one automation run.
type Result struct {
	UpdatedCount int                  `json:"updatedCount"`
	Orders       []model.StatusChange `json:"orders"`
}

// AutomationConfig carries the optional knobs of the engine.
type AutomationConfig struct {
	// TokenExpiry is the checkout-token validity window; expired tokens
	// fail without a gateway call.
	TokenExpiry time.Duration
	// Interval between ticker-driven runs.
	Interval time.Duration
	// Events, when set, receives a message per applied transition.
	Events EventPublisher
	// Lock, when set, serializes runs across replicas.
	Lock *RunLock
	// Now overrides the clock; tests inject simulated time here.
	Now func() time.Time
}

// AutomationWorker advances paid orders through fulfillment on the
// Istanbul wall-clock schedule and repairs stuck or legacy payment states.
// It holds no state between runs; everything lives on the order rows, and
// every write is guarded on the status observed when the decision was
// made, so concurrent runs lose races instead of double-advancing.
type AutomationWorker struct {
	repo     repository.OrderRepo
	gateway  client.PaymentGateway
	notifier client.NotificationSender
	events   EventPublisher
	lock     *RunLock
	log      *logrus.Entry
	now      func() time.Time

	tokenExpiry time.Duration
	interval    time.Duration

	stuckFoundTotal        uint64
	paymentsRecoveredTotal uint64
	paymentsFailedTotal    uint64
	legacyFixedTotal       uint64
	ordersAdvancedTotal    uint64
	notificationsSentTotal uint64
}

func NewAutomationWorker(
	repo repository.OrderRepo,
	gateway client.PaymentGateway,
	notifier client.NotificationSender,
	cfg AutomationConfig,
	log *logrus.Logger,
) *AutomationWorker {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 30 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	w := &AutomationWorker{
		repo:        repo,
		gateway:     gateway,
		notifier:    notifier,
		events:      cfg.Events,
		lock:        cfg.Lock,
		log:         log.WithField("worker", "AutomationWorker"),
		now:         cfg.Now,
		tokenExpiry: cfg.TokenExpiry,
		interval:    cfg.Interval,
	}
	w.registerMetrics()

	return w
}

func (w *AutomationWorker) registerMetrics() {
	meter := otel.GetMeterProvider().Meter("orderservice.automation")
	meter.Int64ObservableGauge("app_order_automation_total",
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(atomic.LoadUint64(&w.stuckFoundTotal)),
				metric.WithAttributes(attribute.String("action", "scan_stuck_payment")))
			obs.Observe(int64(atomic.LoadUint64(&w.paymentsRecoveredTotal)),
				metric.WithAttributes(attribute.String("action", "verify_payment"), attribute.String("result", "recovered")))
			obs.Observe(int64(atomic.LoadUint64(&w.paymentsFailedTotal)),
				metric.WithAttributes(attribute.String("action", "verify_payment"), attribute.String("result", "failed")))
			obs.Observe(int64(atomic.LoadUint64(&w.legacyFixedTotal)),
				metric.WithAttributes(attribute.String("action", "normalize_legacy")))
			obs.Observe(int64(atomic.LoadUint64(&w.ordersAdvancedTotal)),
				metric.WithAttributes(attribute.String("action", "advance_status")))
			obs.Observe(int64(atomic.LoadUint64(&w.notificationsSentTotal)),
				metric.WithAttributes(attribute.String("action", "send_notification")))
			return nil
		}),
	)
}

// Start runs the engine on a ticker until ctx is cancelled.
func (w *AutomationWorker) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.log.Infof("AutomationWorker started (every %s)", w.interval)

		for {
			select {
			case <-ctx.Done():
				w.log.Info("AutomationWorker stopping...")
				return
			case <-ticker.C:
				res := w.Run(ctx)
				if res.UpdatedCount > 0 {
					w.log.Infof("Automation run advanced %d orders", res.UpdatedCount)
				}
			}
		}
	}()
}

// Run executes one automation invocation: stuck-payment verification,
// legacy normalization, then scheduled advancement. It never panics
// outward; a caller always receives a well-formed Result.
func (w *AutomationWorker) Run(ctx context.Context) (result Result) {
	result.Orders = []model.StatusChange{}

	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("Automation run panicked: %v", r)
			result = Result{Orders: []model.StatusChange{}}
		}
	}()

	if w.lock != nil {
		if !w.lock.TryAcquire(ctx) {
			w.log.Debug("Automation run skipped: another replica holds the lock")
			return result
		}
		defer w.lock.Release(ctx)
	}

	result.Orders = append(result.Orders, w.verifyStuckPayments(ctx)...)
	result.Orders = append(result.Orders, w.normalizeLegacyPaid(ctx)...)
	result.Orders = append(result.Orders, w.advanceScheduled(ctx)...)
	result.UpdatedCount = len(result.Orders)
	return result
}

// Pass 0: orders sitting in pending/pending_payment with a checkout token
// are reconciled against the gateway. Expired tokens fail locally without
// a gateway call.
func (w *AutomationWorker) verifyStuckPayments(ctx context.Context) []model.StatusChange {
	now := w.now()
	orders, err := w.repo.FindStuckPending(ctx, now.Add(-stuckMaxAge), now.Add(-stuckMinAge), batchLimit)
	if err != nil {
		w.log.Errorf("Failed to fetch stuck pending orders: %v", err)
		return nil
	}
	if len(orders) == 0 {
		return nil
	}

	w.log.Infof("Found %d stuck pending orders. Verifying against gateway...", len(orders))
	atomic.AddUint64(&w.stuckFoundTotal, uint64(len(orders)))

	var changes []model.StatusChange
	for _, o := range orders {
		if ch := w.verifyStuckOrder(ctx, o, now); ch != nil {
			changes = append(changes, *ch)
		}
	}
	return changes
}

func (w *AutomationWorker) verifyStuckOrder(ctx context.Context, o *model.Order, now time.Time) *model.StatusChange {
	log := w.log.WithField("order_number", o.OrderNumber)

	if w.tokenExpired(o, now) {
		log.Info("Checkout token expired, marking payment failed")
		return w.markPaymentFailed(ctx, o, "token_expired", "Ödeme oturumu zaman aşımına uğradı.", now)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	res, err := w.gateway.RetrieveByToken(reqCtx, o.Payment.Token, uuid.New().String())
	cancel()
	if err != nil {
		log.Warnf("Gateway retrieve failed: %v. Leaving order for next run.", err)
		return nil
	}

	switch {
	case res.Succeeded():
		return w.confirmPaidOrder(ctx, o, res, now)
	case res.Failed():
		log.Infof("Gateway reports payment failure (code %s)", res.ErrorCode)
		return w.markPaymentFailed(ctx, o, res.ErrorCode, client.CustomerMessage(res.ErrorCode), now)
	default:
		// Still pending (e.g. 3-D Secure in flight); leave untouched.
		return nil
	}
}

func (w *AutomationWorker) confirmPaidOrder(ctx context.Context, o *model.Order, res *client.CheckoutResult, now time.Time) *model.StatusChange {
	log := w.log.WithField("order_number", o.OrderNumber)

	tl := o.Timeline.WithStatus(model.StatusConfirmed, "Ödeme doğrulandı", true, now)
	patch := map[string]interface{}{
		"status":                   model.StatusConfirmed,
		"payment_status":           model.PaymentPaid,
		"payment_transaction_id":   res.PaymentID,
		"payment_card_last4":       res.LastFourDigits,
		"payment_card_type":        res.CardType,
		"payment_card_association": res.CardAssociation,
		"payment_installment":      res.Installment,
		"payment_paid_price":       res.PaidPrice,
		"payment_paid_at":          now,
		"timeline":                 tl,
	}

	ok, err := w.repo.UpdateIfStatus(ctx, o.ID, o.Status, patch)
	if err != nil {
		log.Errorf("Failed to confirm order: %v", err)
		return nil
	}
	if !ok {
		log.Warn("Confirm update lost the status guard, skipping")
		return nil
	}

	atomic.AddUint64(&w.paymentsRecoveredTotal, 1)
	log.Info("Stuck payment recovered, order confirmed")

	change := model.StatusChange{OrderNumber: o.OrderNumber, OldStatus: o.Status, NewStatus: model.StatusConfirmed}
	w.publishChange(ctx, change)

	// Best effort: a failed mail never rolls back the confirmation.
	if err := w.notifier.SendOrderConfirmation(ctx, &client.OrderConfirmation{
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		OrderNumber:   o.OrderNumber,
		DeliveryDate:  timeutil.NormalizeDeliveryDate(o.Delivery.Date),
		Items:         []byte(o.Items),
	}); err != nil {
		log.Warnf("Order confirmation mail failed: %v", err)
	}

	o.Status = model.StatusConfirmed
	o.Timeline = tl
	w.notifyStatus(ctx, o, model.StatusConfirmed)
	return &change
}

func (w *AutomationWorker) markPaymentFailed(ctx context.Context, o *model.Order, code, message string, now time.Time) *model.StatusChange {
	tl := o.Timeline.WithStatus(model.StatusPaymentFailed, message, true, now)
	patch := map[string]interface{}{
		"status":                model.StatusPaymentFailed,
		"payment_status":        model.PaymentFailed,
		"payment_error_code":    code,
		"payment_error_message": message,
		"timeline":              tl,
	}

	ok, err := w.repo.UpdateIfStatus(ctx, o.ID, o.Status, patch)
	if err != nil {
		w.log.Errorf("Failed to mark payment failed for %s: %v", o.OrderNumber, err)
		return nil
	}
	if !ok {
		return nil
	}

	atomic.AddUint64(&w.paymentsFailedTotal, 1)
	change := model.StatusChange{OrderNumber: o.OrderNumber, OldStatus: o.Status, NewStatus: model.StatusPaymentFailed}
	w.publishChange(ctx, change)
	return &change
}

func (w *AutomationWorker) tokenExpired(o *model.Order, now time.Time) bool {
	if o.Payment.TokenCreatedAt == nil {
		// No creation timestamp: fall back to the order age.
		return now.Sub(o.CreatedAt) > w.tokenExpiry
	}
	return now.Sub(*o.Payment.TokenCreatedAt) > w.tokenExpiry
}

// Pass 1: paid orders that never completed the confirm transition (an old
// bug left some behind) are normalized to confirmed, with time group and
// delivery date backfilled.
func (w *AutomationWorker) normalizeLegacyPaid(ctx context.Context) []model.StatusChange {
	now := w.now()
	orders, err := w.repo.FindPaidLegacy(ctx, now.Add(-legacyWindow), batchLimit)
	if err != nil {
		w.log.Errorf("Failed to fetch paid legacy orders: %v", err)
		return nil
	}
	if len(orders) == 0 {
		return nil
	}

	w.log.Infof("Found %d paid orders still pending. Normalizing...", len(orders))

	var changes []model.StatusChange
	for _, o := range orders {
		log := w.log.WithField("order_number", o.OrderNumber)

		tl := o.Timeline
		if !tl.HasStatus(model.StatusConfirmed) {
			tl = tl.WithStatus(model.StatusConfirmed, "Ödeme doğrulandı (geriye dönük düzeltme)", true, now)
		}

		patch := map[string]interface{}{
			"status":   model.StatusConfirmed,
			"timeline": tl,
		}
		if !model.ValidTimeGroup(o.TimeGroup) {
			patch["time_group"] = model.TimeGroupForHour(timeutil.CivilHour(o.CreatedAt))
		}
		if key := timeutil.NormalizeDeliveryDate(o.Delivery.Date); key != "" && key != o.Delivery.Date {
			patch["delivery_date"] = key
		}

		ok, err := w.repo.UpdateIfStatus(ctx, o.ID, o.Status, patch)
		if err != nil {
			log.Errorf("Failed to normalize legacy order: %v", err)
			continue
		}
		if !ok {
			log.Warn("Legacy normalization lost the status guard, skipping")
			continue
		}

		atomic.AddUint64(&w.legacyFixedTotal, 1)
		change := model.StatusChange{OrderNumber: o.OrderNumber, OldStatus: o.Status, NewStatus: model.StatusConfirmed}
		changes = append(changes, change)
		w.publishChange(ctx, change)

		o.Status = model.StatusConfirmed
		o.Timeline = tl
		w.notifyStatus(ctx, o, model.StatusConfirmed)
	}
	return changes
}

// Pass 2: paid orders delivering today advance along their track. Only the
// single next due transition is applied per order per run so the timeline
// never skips an entry; a later run catches the rest.
func (w *AutomationWorker) advanceScheduled(ctx context.Context) []model.StatusChange {
	now := w.now()
	todayKey := timeutil.CivilDateKey(now)

	orders, err := w.repo.FindDueByDateKey(ctx, todayKey, batchLimit)
	if err != nil {
		w.log.Errorf("Failed to fetch orders due today: %v", err)
		return nil
	}

	if len(orders) == 0 {
		// Legacy rows store delivery dates in assorted formats that the
		// exact-match query misses; scan a bounded recent window instead.
		recent, err := w.repo.FindRecentActive(ctx, now.Add(-fallbackScanWindow), fallbackLimit)
		if err != nil {
			w.log.Errorf("Fallback scan for due orders failed: %v", err)
			return nil
		}
		for _, o := range recent {
			if timeutil.NormalizeDeliveryDate(o.Delivery.Date) == todayKey {
				orders = append(orders, o)
			}
		}
	}
	if len(orders) == 0 {
		return nil
	}

	var changes []model.StatusChange
	for _, o := range orders {
		if o.Payment.Status != model.PaymentPaid {
			continue
		}
		if ch := w.advanceOrder(ctx, o, now); ch != nil {
			changes = append(changes, *ch)
		}
	}
	return changes
}

func (w *AutomationWorker) advanceOrder(ctx context.Context, o *model.Order, now time.Time) *model.StatusChange {
	log := w.log.WithField("order_number", o.OrderNumber)

	for _, tr := range schedule.Pending(o) {
		if tr.At.After(now) {
			// Transitions are ordered; nothing further is due yet.
			return nil
		}
		if model.StatusRank(tr.Status) <= model.StatusRank(o.Status) {
			continue
		}

		tl := o.Timeline.WithStatus(tr.Status, statusNote(tr.Status), true, now)
		patch := map[string]interface{}{
			"status":   tr.Status,
			"timeline": tl,
		}
		if tr.Status == model.StatusDelivered {
			patch["delivered_at"] = now
		}

		ok, err := w.repo.UpdateIfStatus(ctx, o.ID, o.Status, patch)
		if err != nil {
			log.Errorf("Failed to advance order to %s: %v", tr.Status, err)
			return nil
		}
		if !ok {
			log.Warnf("Advance to %s lost the status guard, skipping", tr.Status)
			return nil
		}

		atomic.AddUint64(&w.ordersAdvancedTotal, 1)
		log.Infof("Order advanced %s -> %s", o.Status, tr.Status)

		change := model.StatusChange{OrderNumber: o.OrderNumber, OldStatus: o.Status, NewStatus: tr.Status}
		w.publishChange(ctx, change)

		o.Status = tr.Status
		o.Timeline = tl
		w.notifyStatus(ctx, o, tr.Status)
		return &change
	}
	return nil
}

// Pass 3: timeline-driven notification bookkeeping, shared by the other
// passes. The timeline is the idempotency source of truth; a status mail
// goes out at most once per order per status.
func (w *AutomationWorker) notifyStatus(ctx context.Context, o *model.Order, s model.Status) {
	log := w.log.WithField("order_number", o.OrderNumber)

	if o.Timeline.HasSentNotification(s) {
		return
	}

	sent, err := w.notifier.SendOrderStatusUpdate(ctx, &client.OrderStatusUpdate{
		CustomerEmail:   o.CustomerEmail,
		CustomerName:    o.CustomerName,
		OrderNumber:     o.OrderNumber,
		Status:          string(s),
		DeliveryDate:    timeutil.NormalizeDeliveryDate(o.Delivery.Date),
		DeliveryTime:    o.Delivery.TimeSlot,
		DeliveryAddress: o.Delivery.FullAddress,
		District:        o.Delivery.District,
		RecipientName:   o.Delivery.RecipientName,
		RecipientPhone:  o.Delivery.RecipientPhone,
	})
	if err != nil {
		log.Warnf("Status notification (%s) failed: %v", s, err)
		return
	}
	if !sent {
		return
	}

	atomic.AddUint64(&w.notificationsSentTotal, 1)

	// Guard the bookkeeping write on the status just written: if an admin
	// moved the order meanwhile, drop the entry rather than clobber.
	tl := o.Timeline.WithNotification(s, true, true, w.now())
	ok, err := w.repo.UpdateIfStatus(ctx, o.ID, s, map[string]interface{}{"timeline": tl})
	if err != nil {
		log.Errorf("Failed to record notification entry: %v", err)
		return
	}
	if ok {
		o.Timeline = tl
	}
}

func (w *AutomationWorker) publishChange(ctx context.Context, ch model.StatusChange) {
	if w.events == nil {
		return
	}
	w.events.PublishStatusChange(ctx, model.OrderStatusEvent{
		OrderNumber: ch.OrderNumber,
		OldStatus:   ch.OldStatus,
		NewStatus:   ch.NewStatus,
		Automated:   true,
	})
}

func statusNote(s model.Status) string {
	switch s {
	case model.StatusProcessing:
		return "Siparişiniz hazırlanıyor"
	case model.StatusShipped:
		return "Siparişiniz dağıtıma çıktı"
	case model.StatusDelivered:
		return "Siparişiniz teslim edildi"
	default:
		return ""
	}
}
