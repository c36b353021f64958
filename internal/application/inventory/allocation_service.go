package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/warehouse/internal/domain/inventory"
	"github.com/erp/warehouse/internal/domain/shared"
	"github.com/erp/warehouse/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const releaseKeyPrefix = "release:"

// ServiceConfig configures the allocation service
type ServiceConfig struct {
	// FallbackLocationID receives restored stock whose original lot no
	// longer exists. uuid.Nil books it back at the lot's recorded location.
	FallbackLocationID uuid.UUID
	// ReleaseIdempotencyTTL is how long a cancellation key is remembered.
	ReleaseIdempotencyTTL time.Duration
}

// AllocationService places and cancels order stock allocations and books
// incoming stock.
type AllocationService struct {
	txScope     TransactionScope
	orders      inventory.OrderAllocationRepository
	config      ServiceConfig
	validate    *validator.Validate
	logger      *zap.Logger
	orderLocks  *keyedMutex
	publisher   shared.EventPublisher
	idempotency shared.IdempotencyStore
	metrics     *telemetry.AllocationMetrics
}

// NewAllocationService creates a new AllocationService. orders is used for
// reads outside a transaction.
func NewAllocationService(
	txScope TransactionScope,
	orders inventory.OrderAllocationRepository,
	cfg ServiceConfig,
	logger *zap.Logger,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReleaseIdempotencyTTL <= 0 {
		cfg.ReleaseIdempotencyTTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &AllocationService{
		txScope:    txScope,
		orders:     orders,
		config:     cfg,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.Named("allocation"),
		orderLocks: newKeyedMutex(),
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetIdempotencyStore sets the store that guards against double cancellation
func (s *AllocationService) SetIdempotencyStore(store shared.IdempotencyStore) {
	s.idempotency = store
}

// SetAllocationMetrics sets the allocation metrics
func (s *AllocationService) SetAllocationMetrics(m *telemetry.AllocationMetrics) {
	s.metrics = m
}

func (s *AllocationService) coordinator(repos TransactionalRepositories) *inventory.OrderCoordinator {
	var opts []inventory.StockAllocatorOption
	if s.config.FallbackLocationID != uuid.Nil {
		opts = append(opts, inventory.WithFallbackLocation(s.config.FallbackLocationID))
	}
	return inventory.NewOrderCoordinator(inventory.NewStockAllocator(repos.Ledger(), opts...))
}

// PlaceOrder allocates stock for all lines of the order or for none of them.
// An order can be allocated once; placing it again fails with INVALID_STATE.
func (s *AllocationService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (*OrderAllocationResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "place_order",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, cmd.OrderID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrItemCount, len(cmd.Items)),
	)
	defer span.End()

	if err := s.validate.Struct(cmd); err != nil {
		err = invalidInput(err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock := s.orderLocks.Lock(cmd.OrderID)
	defer unlock()

	var allocation *inventory.OrderAllocation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		oa, err := repos.OrderAllocations().FindByOrderID(ctx, cmd.OrderID)
		switch {
		case errors.Is(err, inventory.ErrOrderAllocationNotFound):
			if oa, err = inventory.NewOrderAllocation(cmd.OrderID); err != nil {
				return err
			}
		case err != nil:
			return err
		case oa.Status != inventory.AllocationStatusUnallocated:
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Order %s is already %s", cmd.OrderID, oa.Status))
		}

		if locker, ok := repos.(ProductLocker); ok {
			if err := locker.LockProducts(ctx, cmd.productIDs()); err != nil {
				return err
			}
		}

		results, err := s.coordinator(repos).PlaceOrder(ctx, cmd.requests())
		if err != nil {
			return err
		}
		if err := oa.MarkAllocated(results); err != nil {
			return err
		}
		if err := repos.OrderAllocations().Save(ctx, oa); err != nil {
			return fmt.Errorf("save order allocation: %w", err)
		}
		allocation = oa
		return nil
	})

	if err != nil {
		outcome := s.outcomeOf(ctx, "place", err)
		s.metrics.RecordPlacement(ctx, outcome, errorCode(err), 0, time.Since(start))
		telemetry.RecordError(span, err)
		if !errors.Is(err, shared.ErrInvalidState) {
			s.publish(ctx, inventory.NewStockAllocationRejectedEvent(cmd.OrderID, err))
		}
		s.logFailure(ctx, "place order failed", outcome, err, zap.String("order_id", cmd.OrderID.String()))
		return nil, err
	}

	units := allocation.TotalQuantity()
	s.metrics.RecordPlacement(ctx, telemetry.OutcomeSuccess, "", units, time.Since(start))
	telemetry.SetAttributes(span, telemetry.SpanAttrQuantity, units)
	telemetry.SetOK(span)
	s.publish(ctx, inventory.NewStockAllocatedEvent(allocation.OrderID, allocation.Results))
	s.logger.Info("order allocated",
		zap.String("order_id", allocation.OrderID.String()),
		zap.Int("lines", len(allocation.Results)),
		zap.Int64("units", units),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
	)
	return ToOrderAllocationResponse(allocation), nil
}

// CancelOrder returns the order's allocated stock to the lots it came from.
// Lines already released on their own are skipped. A second cancellation of the same order fails with INVALID_STATE and
// leaves the ledger untouched.
func (s *AllocationService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*OrderAllocationResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "cancel_order",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()),
	)
	defer span.End()

	if orderID == uuid.Nil {
		err := shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	key := releaseKeyPrefix + orderID.String()
	if s.idempotency != nil {
		first, err := s.idempotency.MarkProcessed(ctx, key, s.config.ReleaseIdempotencyTTL)
		if err != nil {
			// the order state machine still rejects a double release
			s.logger.Warn("idempotency store unavailable",
				zap.String("order_id", orderID.String()),
				zap.Error(err),
			)
		} else if !first {
			err := shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Order %s is already released", orderID))
			s.metrics.RecordRelease(ctx, telemetry.OutcomeRejected, errorCode(err), 0, time.Since(start))
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	var (
		allocation *inventory.OrderAllocation
		released   []inventory.AllocationResult
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		oa, err := repos.OrderAllocations().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if oa.Status != inventory.AllocationStatusAllocated {
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Order %s is %s and cannot be released", orderID, oa.Status))
		}
		held := oa.HeldResults()
		if err := s.coordinator(repos).CancelOrder(ctx, held); err != nil {
			return err
		}
		if err := oa.Release(); err != nil {
			return err
		}
		if err := repos.OrderAllocations().Save(ctx, oa); err != nil {
			return fmt.Errorf("save order allocation: %w", err)
		}
		allocation, released = oa, held
		return nil
	})

	if err != nil {
		if s.idempotency != nil && !errors.Is(err, shared.ErrInvalidState) {
			if fErr := s.idempotency.Forget(ctx, key); fErr != nil {
				s.logger.Warn("failed to forget release key", zap.String("key", key), zap.Error(fErr))
			}
		}
		outcome := s.outcomeOf(ctx, "release", err)
		s.metrics.RecordRelease(ctx, outcome, errorCode(err), 0, time.Since(start))
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "cancel order failed", outcome, err, zap.String("order_id", orderID.String()))
		return nil, err
	}

	units := quantityOf(released)
	s.metrics.RecordRelease(ctx, telemetry.OutcomeSuccess, "", units, time.Since(start))
	telemetry.SetAttributes(span, telemetry.SpanAttrQuantity, units)
	telemetry.SetOK(span)
	s.publish(ctx, inventory.NewStockReleasedEvent(orderID, released))
	s.logger.Info("order released",
		zap.String("order_id", orderID.String()),
		zap.Int64("units", units),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
	)
	return ToOrderAllocationResponse(allocation), nil
}

// ReleaseLine returns the stock of a single order line to the ledger. The
// order stays allocated until its last held line is released.
func (s *AllocationService) ReleaseLine(ctx context.Context, orderID uuid.UUID, index int) (*OrderAllocationResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "release_line",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrLineIndex, index),
	)
	defer span.End()

	if orderID == uuid.Nil {
		err := shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	var (
		allocation *inventory.OrderAllocation
		line       inventory.AllocationResult
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		oa, err := repos.OrderAllocations().FindByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if line, err = oa.ReleaseLine(index); err != nil {
			return err
		}
		if err := s.coordinator(repos).CancelOrder(ctx, []inventory.AllocationResult{line}); err != nil {
			return err
		}
		if err := repos.OrderAllocations().Save(ctx, oa); err != nil {
			return fmt.Errorf("save order allocation: %w", err)
		}
		allocation = oa
		return nil
	})

	if err != nil {
		outcome := s.outcomeOf(ctx, "release", err)
		s.metrics.RecordRelease(ctx, outcome, errorCode(err), 0, time.Since(start))
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "release line failed", outcome, err,
			zap.String("order_id", orderID.String()),
			zap.Int("line", index),
		)
		return nil, err
	}

	units := line.TotalQuantity()
	s.metrics.RecordRelease(ctx, telemetry.OutcomeSuccess, "", units, time.Since(start))
	telemetry.SetAttributes(span, telemetry.SpanAttrQuantity, units)
	telemetry.SetOK(span)
	s.publish(ctx, inventory.NewStockLineReleasedEvent(orderID, index, line))
	s.logger.Info("order line released",
		zap.String("order_id", orderID.String()),
		zap.Int("line", index),
		zap.Int64("units", units),
		zap.String("status", string(allocation.Status)),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
	)
	return ToOrderAllocationResponse(allocation), nil
}

// GetOrderAllocation returns the stock state of an order
func (s *AllocationService) GetOrderAllocation(ctx context.Context, orderID uuid.UUID) (*OrderAllocationResponse, error) {
	oa, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToOrderAllocationResponse(oa), nil
}

// ReceiveStock books stock into the lot at (product, location), creating the
// lot if needed. The earlier expiry date wins when the lot already exists.
func (s *AllocationService) ReceiveStock(ctx context.Context, cmd ReceiveStockCommand) (*StockLotResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "receive_stock",
		telemetry.WithAttribute(telemetry.SpanAttrProductID, cmd.ProductID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrLocationID, cmd.LocationID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrQuantity, cmd.Quantity),
	)
	defer span.End()

	if err := s.validate.Struct(cmd); err != nil {
		err = invalidInput(err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	req := inventory.ReceiveRequest{
		ProductID:  cmd.ProductID,
		LocationID: cmd.LocationID,
		Quantity:   cmd.Quantity,
		ExpiryDate: cmd.ExpiryDate,
		UnitCost:   cmd.UnitCost,
	}
	if err := req.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var lot *inventory.StockLot
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Ledger().Execute(ctx, cmd.ProductID, func(ledger inventory.StockLedger) error {
			var err error
			lot, err = ledger.Receive(ctx, req)
			return err
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("receive stock failed",
			zap.String("product_id", cmd.ProductID.String()),
			zap.String("location_id", cmd.LocationID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordReceipt(ctx, cmd.Quantity)
	telemetry.SetOK(span)
	s.publish(ctx, inventory.NewStockReceivedEvent(lot, cmd.Quantity))
	s.logger.Info("stock received",
		zap.String("lot_id", lot.ID.String()),
		zap.String("product_id", lot.ProductID.String()),
		zap.Int64("received", cmd.Quantity),
		zap.Int64("on_hand", lot.Quantity),
	)
	resp := ToStockLotResponse(lot)
	return &resp, nil
}

// RemoveLot deletes an empty lot of the product. Stock restored later for
// that lot goes to the fallback location.
func (s *AllocationService) RemoveLot(ctx context.Context, productID, lotID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "remove_lot",
		telemetry.WithAttribute(telemetry.SpanAttrProductID, productID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrLotID, lotID.String()),
	)
	defer span.End()

	if productID == uuid.Nil {
		err := shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
		telemetry.RecordError(span, err)
		return err
	}

	var lot *inventory.StockLot
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Ledger().Execute(ctx, productID, func(ledger inventory.StockLedger) error {
			found, err := ledger.FindLot(ctx, lotID)
			if err != nil {
				return err
			}
			if found.ProductID != productID {
				return inventory.ErrLotNotFound
			}
			if err := ledger.RemoveLot(ctx, lotID); err != nil {
				return err
			}
			lot = found
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logFailure(ctx, "remove lot failed", s.outcomeOf(ctx, "remove_lot", err), err,
			zap.String("product_id", productID.String()),
			zap.String("lot_id", lotID.String()),
		)
		return err
	}

	telemetry.SetOK(span)
	s.publish(ctx, inventory.NewStockLotRemovedEvent(lot))
	s.logger.Info("stock lot removed",
		zap.String("lot_id", lotID.String()),
		zap.String("product_id", productID.String()),
		zap.String("location_id", lot.LocationID.String()),
	)
	return nil
}

// ListLots returns the product's lots in consumption order together with the
// quantity available for allocation.
func (s *AllocationService) ListLots(ctx context.Context, productID uuid.UUID) (*ProductLotsResponse, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}

	var lots []inventory.StockLot
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Ledger().Execute(ctx, productID, func(ledger inventory.StockLedger) error {
			var err error
			lots, err = ledger.LotsForProduct(ctx, productID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	resp := &ProductLotsResponse{
		ProductID: productID,
		Available: inventory.AvailableTotal(lots),
		Lots:      make([]StockLotResponse, 0, len(lots)),
	}
	for i := range lots {
		resp.Lots = append(resp.Lots, ToStockLotResponse(&lots[i]))
	}
	return resp, nil
}

// AvailableQuantity returns the quantity of the product that can be allocated
func (s *AllocationService) AvailableQuantity(ctx context.Context, productID uuid.UUID) (int64, error) {
	resp, err := s.ListLots(ctx, productID)
	if err != nil {
		return 0, err
	}
	return resp.Available, nil
}

// publish sends events after the transaction has committed. Delivery
// failures are logged by the event bus and do not fail the operation.
func (s *AllocationService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish events", zap.Error(err))
	}
}

func (s *AllocationService) outcomeOf(ctx context.Context, operation string, err error) string {
	if inventory.IsRollbackFailure(err) {
		s.metrics.RecordRollbackFailure(ctx, operation)
		return telemetry.OutcomeFailed
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return telemetry.OutcomeRejected
	}
	return telemetry.OutcomeFailed
}

func (s *AllocationService) logFailure(ctx context.Context, msg, outcome string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("outcome", outcome),
		zap.String("error_code", errorCode(err)),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
		zap.Error(err),
	)
	if outcome == telemetry.OutcomeRejected {
		s.logger.Info(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}

func quantityOf(results []inventory.AllocationResult) int64 {
	var total int64
	for _, r := range results {
		total += r.TotalQuantity()
	}
	return total
}

// errorCode returns the code of the first DomainError in err's chain
func errorCode(err error) string {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("Field %s failed on the '%s' rule", fe.Namespace(), fe.Tag()))
	}
	return shared.NewDomainError("INVALID_INPUT", err.Error())
}
