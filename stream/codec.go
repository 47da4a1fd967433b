package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openderiv/ledgerx-data/model"
)

// EventKind tags a decoded inbound frame.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindHeartbeat
	KindBookTop
	KindBalance
	KindPosition
	KindFill
	KindStateManifest
	KindAuthResult
	KindError
)

func (k EventKind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindBookTop:
		return "book_top"
	case KindBalance:
		return "balance"
	case KindPosition:
		return "position"
	case KindFill:
		return "fill"
	case KindStateManifest:
		return "state_manifest"
	case KindAuthResult:
		return "auth_result"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Event is a decoded inbound frame. Exactly the field matching Kind is
// populated.
type Event struct {
	Kind       EventKind
	ReceivedAt time.Time

	BookTop   *model.BookTop
	Balances  []model.Balance  // All assets present in the update
	Positions []model.Position // All contracts present in the update
	Fill      *model.Fill
	Heartbeat *Heartbeat
	Manifest  *StateManifest
	Authed    bool  // KindAuthResult: token was accepted
	Err       error // KindError: server error; KindUnknown: decode failure, if any
}

// Heartbeat is the server's periodic liveness frame.
type Heartbeat struct {
	Timestamp int64 // Exchange clock (ns since epoch)
	Ticks     int64 // Monotonic per-connection counter
	RunID     int64
}

// StateManifest is the initial connection summary for authenticated
// sessions.
type StateManifest struct {
	OpenOrderCount int64
}

// Wire frames. The exchange multiplexes all channels over one socket and
// discriminates on the "type" field.
type wireFrame struct {
	Type string `json:"type"`

	// book_top
	ContractID int64  `json:"contract_id"`
	Bid        int64  `json:"bid"`
	BidSize    int64  `json:"bid_size"`
	Ask        int64  `json:"ask"`
	AskSize    int64  `json:"ask_size"`
	Clock      *int64 `json:"clock"` // Pointer: 0 is a valid clock, absence is not

	// heartbeat
	Timestamp *int64 `json:"timestamp"`
	Ticks     int64  `json:"ticks"`
	RunID     int64  `json:"run_id"`

	// collateral_balance_update
	Collateral *wireCollateral `json:"collateral"`

	// open_positions_update
	Positions []wirePosition `json:"positions"`

	// action_report
	MID        string `json:"mid"`
	FilledSize int64  `json:"filled_size"`
	StatusType int64  `json:"status_type"`

	// state_manifest
	Manifest *wireManifest `json:"state_manifest"`

	// error
	Error string `json:"error"`
}

type wireCollateral struct {
	Available map[string]int64 `json:"available_balances"`
	Locked    map[string]int64 `json:"position_locked_balances"`
}

type wirePosition struct {
	ContractID int64 `json:"contract_id"`
	Size       int64 `json:"size"`
}

type wireManifest struct {
	OpenOrderCount int64 `json:"open_order_count"`
}

// Decode parses a raw text frame into a tagged Event. Malformed or
// unrecognized frames decode to KindUnknown; Decode never fails.
func Decode(data []byte, receivedAt time.Time) Event {
	ev := Event{Kind: KindUnknown, ReceivedAt: receivedAt}

	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		ev.Err = fmt.Errorf("decode frame: %w", err)
		return ev
	}

	switch frame.Type {
	case "heartbeat":
		ev.Kind = KindHeartbeat
		ev.Heartbeat = &Heartbeat{
			Timestamp: frameTimestamp(frame, receivedAt),
			Ticks:     frame.Ticks,
			RunID:     frame.RunID,
		}

	case "book_top":
		ev.Kind = KindBookTop
		ev.BookTop = &model.BookTop{
			ContractID: frame.ContractID,
			BidPrice:   model.FromCents(frame.Bid),
			BidSize:    frame.BidSize,
			AskPrice:   model.FromCents(frame.Ask),
			AskSize:    frame.AskSize,
			Timestamp:  frameTimestamp(frame, receivedAt),
			ReceivedAt: receivedAt.UnixNano(),
		}

	case "collateral_balance_update":
		if frame.Collateral == nil {
			ev.Err = fmt.Errorf("collateral_balance_update without collateral")
			return ev
		}
		ev.Kind = KindBalance
		ev.Balances = decodeBalances(frame.Collateral, frameTimestamp(frame, receivedAt))

	case "open_positions_update":
		ev.Kind = KindPosition
		ts := frameTimestamp(frame, receivedAt)
		for _, p := range frame.Positions {
			ev.Positions = append(ev.Positions, decodePosition(p, ts))
		}

	case "action_report":
		mid, err := uuid.Parse(frame.MID)
		if err != nil {
			ev.Err = fmt.Errorf("action_report mid %q: %w", frame.MID, err)
			return ev
		}
		ev.Kind = KindFill
		ev.Fill = &model.Fill{
			MID:        mid,
			ContractID: frame.ContractID,
			FilledSize: frame.FilledSize,
			Timestamp:  frameTimestamp(frame, receivedAt),
		}

	case "state_manifest":
		if frame.Manifest == nil {
			ev.Err = fmt.Errorf("state_manifest without body")
			return ev
		}
		ev.Kind = KindStateManifest
		ev.Manifest = &StateManifest{OpenOrderCount: frame.Manifest.OpenOrderCount}

	case "auth_success":
		ev.Kind = KindAuthResult
		ev.Authed = true

	case "unauth_success":
		ev.Kind = KindAuthResult

	case "error":
		ev.Kind = KindError
		ev.Err = &ServerError{Message: frame.Error}
	}

	return ev
}

// frameTimestamp picks the ordering timestamp for a frame: the exchange
// timestamp when present, otherwise the book clock, otherwise the local
// receive time. Present-but-zero fields still count: each cache key must
// order on one timescale only, and local nanoseconds would compare newer
// than any book clock.
func frameTimestamp(frame wireFrame, receivedAt time.Time) int64 {
	if frame.Timestamp != nil {
		return *frame.Timestamp
	}
	if frame.Clock != nil {
		return *frame.Clock
	}
	return receivedAt.UnixNano()
}

func decodeBalances(c *wireCollateral, ts int64) []model.Balance {
	assets := make(map[string]struct{}, len(c.Available)+len(c.Locked))
	for asset := range c.Available {
		assets[asset] = struct{}{}
	}
	for asset := range c.Locked {
		assets[asset] = struct{}{}
	}

	balances := make([]model.Balance, 0, len(assets))
	for asset := range assets {
		balances = append(balances, model.Balance{
			Asset:     asset,
			Available: model.FromAssetUnits(asset, c.Available[asset]),
			Locked:    model.FromAssetUnits(asset, c.Locked[asset]),
			Timestamp: ts,
		})
	}
	return balances
}

func decodePosition(p wirePosition, ts int64) model.Position {
	pos := model.Position{
		ContractID: p.ContractID,
		Size:       p.Size,
		Side:       "long",
		Timestamp:  ts,
	}
	if p.Size < 0 {
		pos.Size = -p.Size
		pos.Side = "short"
	}
	return pos
}

// subscribeFrame is the wire payload for (un)subscribe requests.
type subscribeFrame struct {
	Type        string  `json:"type"`
	ContractIDs []int64 `json:"contract_ids"`
}

// EncodeSubscribe builds the subscribe payload for a set of contracts.
func EncodeSubscribe(contractIDs []int64) ([]byte, error) {
	return json.Marshal(subscribeFrame{Type: "subscribe", ContractIDs: contractIDs})
}

// EncodeUnsubscribe builds the unsubscribe payload for a set of contracts.
func EncodeUnsubscribe(contractIDs []int64) ([]byte, error) {
	return json.Marshal(subscribeFrame{Type: "unsubscribe", ContractIDs: contractIDs})
}
