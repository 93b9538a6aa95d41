package eventstore

import (
	"fmt"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
)

// NewClient connects to EventStoreDB using a standard esdb connection string.
func NewClient(url string) (*esdb.Client, error) {
	settings, err := esdb.ParseConnectionString(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}

func isStreamNotFound(err error) bool {
	if esdbErr, ok := esdb.FromError(err); !ok {
		return esdbErr.Code() == esdb.ErrorCodeResourceNotFound
	}
	return false
}
