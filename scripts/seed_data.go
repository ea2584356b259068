//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

var routes = [][2]string{
	{"Koramangala", "Whitefield"},
	{"Indiranagar", "Electronic City"},
	{"HSR Layout", "Hebbal"},
	{"Jayanagar", "Manyata Tech Park"},
	{"MG Road", "Sarjapur"},
}

func main() {
	rand.Seed(time.Now().UnixNano())

	fmt.Println("Seeding waypool data...")

	// Create drivers
	driverIDs := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		driver := map[string]string{
			"phone": fmt.Sprintf("91%08d", rand.Intn(100000000)),
			"name":  fmt.Sprintf("Seed Driver %d", i),
			"role":  "driver",
		}
		if id := post("/v1/users", driver, ""); id != "" {
			driverIDs = append(driverIDs, id)
		}
	}
	fmt.Printf("Created %d drivers\n", len(driverIDs))

	// Create passengers
	passengerIDs := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		passenger := map[string]string{
			"phone": fmt.Sprintf("98%08d", rand.Intn(100000000)),
			"name":  fmt.Sprintf("Seed Passenger %d", i),
		}
		if id := post("/v1/users", passenger, ""); id != "" {
			passengerIDs = append(passengerIDs, id)
		}
	}
	fmt.Printf("Created %d passengers\n", len(passengerIDs))

	// Publish trips over the coming week
	trips := 0
	for i := 0; i < 40; i++ {
		route := routes[rand.Intn(len(routes))]
		driverID := driverIDs[rand.Intn(len(driverIDs))]

		departure := time.Now().
			AddDate(0, 0, 1+rand.Intn(7)).
			Truncate(time.Hour).
			Add(time.Duration(6+rand.Intn(16)) * time.Hour)

		trip := map[string]interface{}{
			"origin":         route[0],
			"destination":    route[1],
			"departure_time": departure.Format(time.RFC3339),
			"total_seats":    1 + rand.Intn(4),
			"price_per_seat": float64(100 + rand.Intn(9)*50),
		}
		if id := post("/v1/rides", trip, driverID); id != "" {
			trips++
		}
	}
	fmt.Printf("Published %d trips\n", trips)

	fmt.Println("Done.")
}

func post(path string, payload interface{}, actorID string) string {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		log.Printf("request build failed: %v", err)
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-User-ID", actorID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("POST %s failed: %v", path, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		return ""
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if id, ok := result["id"].(string); ok {
		return id
	}
	return ""
}
