//go:build integration

package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/relabs-tech/tablegate/core"
	"github.com/relabs-tech/tablegate/core/notify"
)

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) TestLifecycle() {
	customers := s.client.WithSecret("all").Table("customers")

	var created struct {
		Message string                 `json:"message"`
		Record  map[string]interface{} `json:"record"`
	}
	_, err := customers.Create(map[string]interface{}{"name": "Ada", "active": true, "balance": 2.5}, &created)
	s.Require().NoError(err)
	s.Equal("record created", created.Message)
	s.Equal("Ada", created.Record["name"])
	s.Equal(true, created.Record["active"])
	id := int64(created.Record["ID"].(float64))

	var raw []byte
	_, err = customers.Get(id, &raw)
	s.Require().NoError(err)
	s.Contains(string(raw), `{"ID":`, "postgres folds the identity column, the registry restores its spelling")

	_, err = customers.Edit(id, map[string]interface{}{"balance": 3}, nil)
	s.Require().NoError(err)

	var list []map[string]interface{}
	_, err = customers.Filter(map[string]interface{}{"name": "Ada", "balance": 3.0}, &list)
	s.Require().NoError(err)
	s.Len(list, 1)

	status, err := s.client.WithSecret("reader").Table("customers").Delete(id)
	s.Equal(http.StatusForbidden, status)
	s.Require().Error(err)

	_, err = customers.Delete(id)
	s.Require().NoError(err)
	status, _ = customers.Get(id, nil)
	s.Equal(http.StatusNotFound, status)
}

func (s *IntegrationTestSuite) TestChangeNotifications() {
	customers := s.client.WithSecret("all").Table("customers")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   []string{s.kafkaAddr},
		Topic:     changesTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()
	s.Require().NoError(reader.SetOffset(kafka.LastOffset))

	var created struct {
		Record map[string]interface{} `json:"record"`
	}
	_, err := customers.Create(map[string]interface{}{"name": "Notified"}, &created)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		m, err := reader.ReadMessage(ctx)
		s.Require().NoError(err)
		var event notify.Event
		s.Require().NoError(json.Unmarshal(m.Value, &event))
		if event.Operation != core.OperationCreate {
			continue
		}
		var payload map[string]interface{}
		s.Require().NoError(json.Unmarshal(event.Payload, &payload))
		if payload["name"] != "Notified" {
			continue
		}
		s.Equal("customers", string(m.Key))
		s.Equal("customers", event.Table)
		s.Equal(created.Record["ID"], payload["ID"])
		return
	}
}
