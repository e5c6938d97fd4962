// Package containers starts Docker-backed dependencies for integration tests
// using testcontainers-go:
//
//   - MySQL 8 as the persistent condition store
//   - Eclipse Mosquitto as the notification broker
//
// Containers are started once per package from TestMain:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Files in this package and its users carry the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
