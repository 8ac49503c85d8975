// Package containers provides testcontainers-go wrappers for the external
// services the portal integrates with: MySQL for the document store,
// Eclipse Mosquitto for the live-route MQTT fan-out, and ntfy for notice
// push delivery.
//
// Everything here sits behind the "integration" build tag and needs a
// working Docker daemon:
//
//	go test -tags integration ./...
//
// Containers are created fresh per test run for isolation. Wrappers expose
// connection details (DSN, broker URL, base URL) plus the few helpers the
// integration tests need; lifecycle is usually driven from TestMain:
//
//	var store *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    store, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = store.Terminate(context.Background())
//	    os.Exit(code)
//	}
package containers
