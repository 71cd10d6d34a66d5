package events

import (
	"encoding/json"
	"time"

	"github.com/cimillas/storefront/services/api/internal/domain"
)

const TypeOrderCreated = "order.created"

// Message is one outbox row on its way to a broker. Key groups messages of
// the same aggregate.
type Message struct {
	ID        string
	Type      string
	Key       string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

type OrderCreated struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Items      []OrderCreatedItem `json:"items"`
	Total      string             `json:"total"`
	CreatedAt  time.Time          `json:"created_at"`
}

type OrderCreatedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func NewOrderCreated(order domain.Order) OrderCreated {
	items := make([]OrderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderCreatedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
		})
	}
	return OrderCreated{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      items,
		Total:      order.Total().StringFixed(2),
		CreatedAt:  order.CreatedAt,
	}
}

func (e OrderCreated) Encode() ([]byte, error) {
	return json.Marshal(e)
}
