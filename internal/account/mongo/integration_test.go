// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/authflows/authflows/internal/account"
	"github.com/authflows/authflows/internal/account/mongo"
	"github.com/authflows/authflows/internal/account/storetest"
)

var testClient *mongodriver.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		panic("failed to start mongo container: " + err.Error())
	}

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get mongo endpoint: " + err.Error())
	}

	client, err := mongo.Connect(ctx, fmt.Sprintf("mongodb://%s", endpoint))
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to connect to mongo: " + err.Error())
	}
	testClient = client

	code := m.Run()

	_ = client.Disconnect(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func freshStore(t *testing.T) account.Store {
	t.Helper()
	ctx := context.Background()
	coll := testClient.Database("authflows_test").Collection(mongo.DefaultCollection)
	_, err := coll.DeleteMany(ctx, bson.M{})
	require.NoError(t, err)

	s := mongo.NewStore(coll)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, freshStore)
}
