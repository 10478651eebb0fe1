// Package gossip implements peer-to-peer block and chain exchange: a
// websocket server accepting long-lived bidirectional connections, one
// outbound connection per configured peer, and the CHAIN/BLOCK message
// handling that keeps every node's chain converging.
package gossip

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn wraps one peer connection with its own outbound queue, so a slow
// peer never blocks a broadcast to the others.
type conn struct {
	host string
	ws   *websocket.Conn
	send chan message
}

// Core manages the set of live peer connections and drives chain
// convergence over them.
type Core struct {
	log      *zap.SugaredLogger
	chain    *chain.Store
	creators *creator.Core
	self     string

	peers *PeerSet

	wg   sync.WaitGroup
	shut chan struct{}
}

// NewCore constructs a gossip core. self is this node's own P2P address,
// used to avoid dialing itself. creators is
// used to verify signatures on gossiped candidate chains before they ever
// reach the store.
func NewCore(log *zap.SugaredLogger, store *chain.Store, creators *creator.Core, self string) *Core {
	return &Core{
		log:      log,
		chain:    store,
		creators: creators,
		self:     self,
		peers:    NewPeerSet(),
		shut:     make(chan struct{}),
	}
}

// Handler upgrades inbound HTTP connections to websockets for the P2P
// listener.
func (c *Core) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.log.Warnw("gossip: upgrade failed", "error", err)
			return
		}

		c.accept(r.RemoteAddr, ws)
	}
}

// Dial opens an outbound connection to a configured peer and starts
// gossiping with it.
func (c *Core) Dial(host string) {
	if host == c.self {
		return
	}

	go c.dialLoop(host)
}

// dialLoop keeps retrying a peer connection until shutdown, reconnecting on
// drop with a fixed backoff interval.
func (c *Core) dialLoop(host string) {
	for {
		select {
		case <-c.shut:
			return
		default:
		}

		url := fmt.Sprintf("ws://%s/p2p", host)
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			c.log.Warnw("gossip: dial failed", "host", host, "error", err)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-c.shut:
				return
			}
		}

		c.accept(host, ws)

		select {
		case <-time.After(5 * time.Second):
		case <-c.shut:
			return
		}
	}
}

// accept registers a connection (inbound or outbound), sends the full
// local chain, and starts its read/write pumps.
func (c *Core) accept(host string, ws *websocket.Conn) {
	cn := &conn{
		host: host,
		ws:   ws,
		send: make(chan message, sendBuffer),
	}

	c.peers.Add(Peer{Host: host}, cn)

	c.log.Infow("gossip: peer connected", "host", host)

	c.wg.Add(2)
	go c.writeLoop(cn)
	go c.readLoop(cn)

	c.sendChain(cn)
}

func (c *Core) drop(cn *conn) {
	c.peers.Remove(Peer{Host: cn.host})

	cn.ws.Close()

	c.log.Infow("gossip: peer disconnected", "host", cn.host)
}

func (c *Core) sendChain(cn *conn) {
	ctx := context.Background()
	page, err := c.chain.PaginatedRead(ctx, chain.PageQuery{Page: 1, Limit: 1 << 30, Sort: chain.SortBlockNumber})
	if err != nil {
		c.log.Errorw("gossip: reading local chain", "error", err)
		return
	}

	wire := make([]wireBlock, len(page.Blocks))
	for i, blk := range page.Blocks {
		wire[i] = toWire(blk)
	}

	select {
	case cn.send <- message{Type: typeChain, Chain: wire}:
	default:
		c.log.Warnw("gossip: send queue full, dropping initial chain", "host", cn.host)
	}
}

// Broadcast implements mining.Broadcaster: it fans a newly appended block
// out to every live connection.
func (c *Core) Broadcast(ctx context.Context, blk chain.Block) {
	c.broadcastExcept(blk, "")
}

func (c *Core) broadcastExcept(blk chain.Block, exceptHost string) {
	wire := toWire(blk)
	msg := message{Type: typeBlock, Block: &wire}

	for _, cn := range c.peers.Copy(exceptHost) {
		select {
		case cn.send <- msg:
		default:
			c.log.Warnw("gossip: send queue full, dropping block broadcast", "host", cn.host)
		}
	}
}

func (c *Core) writeLoop(cn *conn) {
	defer c.wg.Done()

	for {
		select {
		case msg := <-cn.send:
			cn.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cn.ws.WriteJSON(msg); err != nil {
				c.log.Warnw("gossip: write failed", "host", cn.host, "error", err)
				cn.ws.Close()
				return
			}

		case <-c.shut:
			return
		}
	}
}

func (c *Core) readLoop(cn *conn) {
	defer c.wg.Done()
	defer c.drop(cn)

	ctx := context.Background()

	for {
		var msg message
		if err := cn.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case typeChain:
			c.handleChain(ctx, msg.Chain)

		case typeBlock:
			c.handleBlock(ctx, msg.Block, cn.host)

		default:
			c.log.Warnw("gossip: unknown message type", "type", msg.Type, "host", cn.host)
		}
	}
}

// handleChain applies the longest-chain rule: a candidate strictly longer
// than the local chain, and which passes the same hash/PoW/chain-link/
// signature checks the verifier runs on appended blocks, replaces the local
// chain wholesale.
func (c *Core) handleChain(ctx context.Context, wire []wireBlock) {
	candidate := make([]chain.Block, 0, len(wire))
	for _, w := range wire {
		blk, err := fromWire(w)
		if err != nil {
			c.log.Warnw("gossip: decoding candidate block", "error", err)
			return
		}
		candidate = append(candidate, blk)
	}

	if err := c.validateCandidate(ctx, candidate); err != nil {
		c.log.Warnw("gossip: rejecting invalid candidate chain", "error", err)
		return
	}

	result, err := c.chain.ReplaceChain(ctx, candidate)
	if err != nil {
		c.log.Errorw("gossip: replace_chain failed", "error", err)
		return
	}

	c.log.Infow("gossip: received chain", "result", result, "length", len(candidate))
}

// validateCandidate re-runs the hash recomputation, proof-of-work,
// chain-link, and signature checks over every block of a candidate chain
// received from a peer, in block order, before it is ever handed to the
// store for a replace. This mirrors the per-block checks business/core/verifier
// applies to already-appended blocks, but against the standalone candidate
// slice rather than the durable log.
func (c *Core) validateCandidate(ctx context.Context, candidate []chain.Block) error {
	for i, blk := range candidate {
		input := cryptutil.HashInput(cryptutil.HashInputFields{
			PreviousHash:     blk.PreviousHash,
			EncryptedData:    blk.EncryptedData,
			DataIV:           blk.DataIV,
			EncryptedDataKey: blk.EncryptedDataKey,
			Nonce:            blk.Nonce,
			CreatedAt:        blk.CreatedAt.Format(time.RFC3339),
			CreatorID:        blk.CreatorID,
			Difficulty:       blk.Difficulty,
		})
		if !cryptutil.ConstantTimeHashEqual(cryptutil.BlockHash(input), blk.Hash) {
			return fmt.Errorf("block %d: hash mismatch", blk.Number)
		}

		if !cryptutil.HasDifficultyPrefix(blk.Hash, blk.Difficulty) {
			return fmt.Errorf("block %d: proof-of-work failed", blk.Number)
		}

		if i == 0 {
			if blk.PreviousHash != "" && blk.PreviousHash != cryptutil.GenesisSentinel {
				return fmt.Errorf("block %d: genesis previous_hash invalid", blk.Number)
			}
		} else if candidate[i-1].Hash != blk.PreviousHash {
			return fmt.Errorf("block %d: chain link broken", blk.Number)
		}

		crt, err := c.creators.QueryByID(ctx, blk.CreatorID)
		if err != nil {
			return fmt.Errorf("block %d: creator missing: %w", blk.Number, err)
		}
		if err := cryptutil.VerifyBlockHashSignature(crt.PublicKey, blk.Hash, blk.Signature); err != nil {
			return fmt.Errorf("block %d: signature invalid", blk.Number)
		}
	}

	return nil
}

// handleBlock appends a gossiped block and, if newly inserted,
// re-broadcasts it to every other peer.
func (c *Core) handleBlock(ctx context.Context, w *wireBlock, fromHost string) {
	if w == nil {
		return
	}

	blk, err := fromWire(*w)
	if err != nil {
		c.log.Warnw("gossip: decoding gossiped block", "error", err)
		return
	}

	result, stored, err := c.chain.Append(ctx, blk)
	if err != nil {
		c.log.Errorw("gossip: appending gossiped block", "error", err)
		return
	}

	if result == chain.Inserted {
		c.broadcastExcept(stored, fromHost)
	}
}

// PeerCount reports the number of live connections, surfaced by GET /health.
func (c *Core) PeerCount() int {
	return c.peers.Len()
}

// Shutdown closes every socket and waits for the read/write pumps to exit.
func (c *Core) Shutdown() {
	close(c.shut)

	for _, cn := range c.peers.All() {
		cn.ws.Close()
	}

	c.wg.Wait()
}
