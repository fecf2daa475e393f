// cmd/stock-push-gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poscore/internal/pkg/bootstrap"
	"poscore/internal/pkg/constants"
	"poscore/internal/pkg/logger"
	"poscore/internal/pkg/mq"
)

const serviceName = constants.StockPushGateway

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Hub 维护所有活跃的门店展示端连接，把库存事件扇出给它们。
// 客户端可以只订阅某个商品，不带参数则收全量
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	lock       sync.RWMutex
}

type broadcastMsg struct {
	articleID string
	payload   []byte
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case msg := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				if client.articleID != "" && client.articleID != msg.articleID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// 慢客户端跟不上就丢这条，不能拖垮广播
				}
			}
			h.lock.RUnlock()
		}
	}
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	articleID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		articleID: r.URL.Query().Get("article_id"),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeStockEvents 消费库存事件并交给 Hub 广播。
// 消息 key 就是商品 ID，不需要解包整个 payload 再路由
func consumeStockEvents(ctx context.Context, hub *Hub, brokers []string) {
	reader := mq.NewKafkaReader(brokers, constants.StockEventsTopic, constants.StockPushConsumerGrp)
	defer reader.Close()

	logger.Ctx(ctx).Info().Strs("brokers", brokers).Msg("✅ Stock event consumer started")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Stock event consumer stopped")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("fetch stock event failed")
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		hub.broadcast <- broadcastMsg{articleID: string(msg.Key), payload: msg.Value}
		if err := reader.CommitMessages(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("commit stock event failed")
		}
	}
}

func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()

	hub := newHub()
	go hub.run()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go consumeStockEvents(consumerCtx, hub, cfg.Infra.Kafka.Brokers)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8089,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, w, r)
			})
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumer()
		},
	})
}
