//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const baseURL = "http://localhost:8080"

// Stress the seat-reservation race: N concurrent passengers booking one seat
// each on a trip with k < N seats must yield exactly k confirmed reservations
// and N-k insufficient_seats rejections.
func main() {
	rand.Seed(time.Now().UnixNano())

	const (
		totalSeats = 5
		bookers    = 50
	)

	fmt.Println("Waypool Booking Race Test")
	fmt.Println("=========================")

	driverID := createUser("Race Driver", "driver")
	if driverID == "" {
		log.Fatal("failed to create driver")
	}

	passengerIDs := make([]string, 0, bookers)
	for i := 0; i < bookers; i++ {
		if id := createUser(fmt.Sprintf("Race Passenger %d", i), "passenger"); id != "" {
			passengerIDs = append(passengerIDs, id)
		}
	}
	if len(passengerIDs) < bookers {
		log.Fatalf("only created %d/%d passengers", len(passengerIDs), bookers)
	}

	tripID := createTrip(driverID, totalSeats)
	if tripID == "" {
		log.Fatal("failed to create trip")
	}
	fmt.Printf("Trip %s created with %d seats, releasing %d bookers\n", tripID, totalSeats, bookers)

	var successes, seatRejections, otherFailures int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for _, passengerID := range passengerIDs {
		wg.Add(1)
		go func(passengerID string) {
			defer wg.Done()
			<-start

			status, errCode := book(tripID, passengerID)
			switch {
			case status == 201:
				atomic.AddInt64(&successes, 1)
			case status == 409 && errCode == "insufficient_seats":
				atomic.AddInt64(&seatRejections, 1)
			default:
				atomic.AddInt64(&otherFailures, 1)
			}
		}(passengerID)
	}

	close(start)
	wg.Wait()

	fmt.Printf("\nResults:\n")
	fmt.Printf("  Bookings accepted:    %d (want %d)\n", successes, totalSeats)
	fmt.Printf("  insufficient_seats:   %d (want %d)\n", seatRejections, bookers-totalSeats)
	fmt.Printf("  Other failures:       %d\n", otherFailures)

	remaining := availableSeats(tripID)
	fmt.Printf("  Seats remaining:      %d (want 0)\n", remaining)

	if successes != totalSeats || remaining != 0 {
		fmt.Println("\nOVERBOOKING DETECTED - seat reservation is not atomic")
		return
	}
	fmt.Println("\nNo overbooking. Seat reservation held under contention.")
}

func createUser(name, role string) string {
	payload := map[string]string{
		"phone": fmt.Sprintf("97%08d", rand.Intn(100000000)),
		"name":  name,
		"role":  role,
	}
	return post("/v1/users", payload, "")
}

func createTrip(driverID string, seats int) string {
	payload := map[string]interface{}{
		"origin":         "Koramangala",
		"destination":    "Whitefield",
		"departure_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"total_seats":    seats,
		"price_per_seat": 150.0,
	}
	return post("/v1/rides", payload, driverID)
}

func book(tripID, passengerID string) (int, string) {
	body, _ := json.Marshal(map[string]int{"seats": 1})
	req, _ := http.NewRequest("POST", baseURL+"/v1/rides/"+tripID+"/book", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", passengerID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, ""
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	errCode, _ := result["error"].(string)
	return resp.StatusCode, errCode
}

func availableSeats(tripID string) int {
	resp, err := http.Get(baseURL + "/v1/rides/" + tripID)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if seats, ok := result["available_seats"].(float64); ok {
		return int(seats)
	}
	return -1
}

func post(path string, payload interface{}, actorID string) string {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", baseURL+path, bytes.NewBuffer(body))
	if err != nil {
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
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

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
