package domain

// Level is one price level of a contract orderbook.
type Level struct {
	Price int64
	Qty   int64
}

// Orderbook holds resting YES and NO buy orders keyed by price in cents.
// Levels arrive in no particular order from the venue.
type Orderbook struct {
	yes map[int64]int64
	no  map[int64]int64
}

// NewOrderbook builds a book from snapshot levels.
func NewOrderbook(yes, no []Level) *Orderbook {
	ob := &Orderbook{
		yes: make(map[int64]int64, len(yes)),
		no:  make(map[int64]int64, len(no)),
	}
	for _, l := range yes {
		ob.yes[l.Price] = l.Qty
	}
	for _, l := range no {
		ob.no[l.Price] = l.Qty
	}
	return ob
}

// ApplyDelta replaces a single price level. Quantity zero removes the level.
func (ob *Orderbook) ApplyDelta(side Side, price, qty int64) {
	book := ob.yes
	if side == SideNo {
		book = ob.no
	}
	if qty == 0 {
		delete(book, price)
		return
	}
	book[price] = qty
}

// BestBid is the highest resting YES bid, 0 when the YES side is empty.
func (ob *Orderbook) BestBid() int64 {
	var best int64
	for p := range ob.yes {
		if p > best {
			best = p
		}
	}
	return best
}

// BestAsk is the lowest price YES can be bought at, derived from the NO side
// (100 - best NO bid). 100 when the NO side is empty.
func (ob *Orderbook) BestAsk() int64 {
	var bestNo int64
	for p := range ob.no {
		if p > bestNo {
			bestNo = p
		}
	}
	return 100 - bestNo
}

// Spread is BestAsk - BestBid.
func (ob *Orderbook) Spread() int64 {
	return ob.BestAsk() - ob.BestBid()
}

// TwoSided reports whether both sides have resting orders.
func (ob *Orderbook) TwoSided() bool {
	return len(ob.yes) > 0 && len(ob.no) > 0
}

// Empty reports whether the book has no resting orders at all.
func (ob *Orderbook) Empty() bool {
	return len(ob.yes) == 0 && len(ob.no) == 0
}

// Depth returns the total resting quantity per side.
func (ob *Orderbook) Depth() (yesDepth, noDepth int64) {
	for _, q := range ob.yes {
		yesDepth += q
	}
	for _, q := range ob.no {
		noDepth += q
	}
	return yesDepth, noDepth
}

// Clone returns an independent copy of the book.
func (ob *Orderbook) Clone() *Orderbook {
	clone := &Orderbook{
		yes: make(map[int64]int64, len(ob.yes)),
		no:  make(map[int64]int64, len(ob.no)),
	}
	for p, q := range ob.yes {
		clone.yes[p] = q
	}
	for p, q := range ob.no {
		clone.no[p] = q
	}
	return clone
}
