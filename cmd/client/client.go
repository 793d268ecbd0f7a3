package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

// Thin feed client for exercising a running server: send individual book
// events, replay a file of wire lines, or query book views.

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type orderBody struct {
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	OrderID uint64 `json:"order_id"`
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9100", "Address of the book server")
	action := flag.String("action", "query", "Action: ['create', 'delta', 'quote', 'trade', 'query', 'replay']")
	instrument := flag.String("instrument", "AAPL.XNAS", "Instrument identifier")

	// Create parameters.
	bookType := flag.String("book-type", "L2_MBP", "Book type: ['L1_MBP', 'L2_MBP', 'L3_MBO']")

	// Delta parameters.
	op := flag.String("op", "ADD", "Book action: ['ADD', 'UPDATE', 'DELETE', 'CLEAR']")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	price := flag.String("price", "100.00", "Price")
	size := flag.String("size", "10", "Size")
	orderID := flag.Uint64("order-id", 0, "Order id (L3 books)")
	flags := flag.Uint("flags", 1, "Delta flags (1 = last in batch)")
	sequence := flag.Uint64("sequence", 0, "Venue sequence number")

	// Quote parameters.
	bidPrice := flag.String("bid-price", "99.00", "Quote bid price")
	askPrice := flag.String("ask-price", "101.00", "Quote ask price")
	bidSize := flag.String("bid-size", "10", "Quote bid size")
	askSize := flag.String("ask-size", "10", "Quote ask size")

	// Trade parameters.
	aggressor := flag.String("aggressor", "", "Trade aggressor: ['BUYER', 'SELLER']")
	tradeID := flag.String("trade-id", "", "Venue trade id")

	// Query parameters.
	query := flag.String("query", "top", "Query: ['top', 'bids', 'asks', 'pprint']")
	depth := flag.Int("depth", 10, "Query depth")

	// Replay parameters.
	replayFile := flag.String("file", "", "File of wire lines to replay")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	go readReplies(conn)

	side := "BUY"
	if strings.EqualFold(*sideStr, "sell") {
		side = "SELL"
	}
	now := uint64(time.Now().UnixNano())

	switch strings.ToLower(*action) {
	case "create":
		send(conn, envelope{Type: "create", Data: map[string]any{
			"instrument_id": *instrument,
			"book_type":     *bookType,
		}})
	case "delta":
		send(conn, envelope{Type: "delta", Data: map[string]any{
			"instrument_id": *instrument,
			"action":        strings.ToUpper(*op),
			"order": orderBody{
				Side:    side,
				Price:   *price,
				Size:    *size,
				OrderID: *orderID,
			},
			"flags":    *flags,
			"sequence": *sequence,
			"ts_event": now,
			"ts_init":  now,
		}})
	case "quote":
		send(conn, envelope{Type: "quote", Data: map[string]any{
			"instrument_id": *instrument,
			"bid_price":     *bidPrice,
			"ask_price":     *askPrice,
			"bid_size":      *bidSize,
			"ask_size":      *askSize,
			"ts_event":      now,
			"ts_init":       now,
		}})
	case "trade":
		send(conn, envelope{Type: "trade", Data: map[string]any{
			"instrument_id": *instrument,
			"price":         *price,
			"size":          *size,
			"aggressor":     strings.ToUpper(*aggressor),
			"trade_id":      *tradeID,
			"ts_event":      now,
			"ts_init":       now,
		}})
	case "query":
		send(conn, envelope{Type: "query", Data: map[string]any{
			"instrument_id": *instrument,
			"query":         *query,
			"depth":         *depth,
		}})
	case "replay":
		if *replayFile == "" {
			log.Fatal("Error: -file is required for replay")
		}
		replay(conn, *replayFile)
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Give the server a moment to answer before exiting.
	time.Sleep(500 * time.Millisecond)
}

func send(conn net.Conn, env envelope) {
	out, err := json.Marshal(env)
	if err != nil {
		log.Fatalf("Failed to encode message: %v", err)
	}
	if _, err := conn.Write(append(out, '\n')); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}
	fmt.Printf("-> Sent %s\n", env.Type)
}

// replay streams a file of newline-delimited wire messages to the server.
func replay(conn net.Conn, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open replay file: %v", err)
	}
	defer f.Close()

	sent := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := conn.Write(append([]byte(line), '\n')); err != nil {
			log.Fatalf("Failed to send line %d: %v", sent+1, err)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed reading replay file: %v", err)
	}
	fmt.Printf("-> Replayed %d messages\n", sent)
}

// readReplies continuously prints server reply lines.
func readReplies(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Printf("\n[REPLY] %s\n", scanner.Text())
	}
}
