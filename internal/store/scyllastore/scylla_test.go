package scyllastore_test

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"

	"billetterie_back_end/internal/store"
	"billetterie_back_end/internal/store/scyllastore"
	"billetterie_back_end/internal/store/storetest"
)

// Tests d'intégration : nécessitent un cluster joignable via SCYLLA_HOSTS.
func newTestSession(t *testing.T) *gocql.Session {
	t.Helper()
	hosts := os.Getenv("SCYLLA_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_HOSTS non défini, tests ScyllaDB ignorés")
	}
	keyspace := os.Getenv("SCYLLA_TEST_KEYSPACE")
	if keyspace == "" {
		keyspace = "billetterie_test"
	}

	cluster := gocql.NewCluster(strings.Split(hosts, ",")...)
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second

	admin, err := cluster.CreateSession()
	require.NoError(t, err)
	err = admin.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`).Exec()
	admin.Close()
	require.NoError(t, err)

	cluster.Keyspace = keyspace
	session, err := cluster.CreateSession()
	require.NoError(t, err)
	t.Cleanup(session.Close)

	require.NoError(t, scyllastore.EnsureSchema(session))
	return session
}

func TestScyllaConformance(t *testing.T) {
	session := newTestSession(t)
	storetest.Run(t, func(t *testing.T) store.Docs {
		require.NoError(t, session.Query(`TRUNCATE documents`).Exec())
		return scyllastore.New(session)
	})
}
