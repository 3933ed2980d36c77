// clob.go - Authenticated Polymarket CLOB trading client.
// Places and cancels signed limit orders and reads collateral and
// outcome-token balances. Balance polling is how fills are confirmed:
// orders on these markets often report "live" long after shares have
// already landed, so the token balance is the source of truth.
package polymarket

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the on-chain scale for outcome shares and USDC
const TokenDecimals = 1_000_000

// ApiCreds are L2 API credentials, derived from the wallet when not
// supplied directly
type ApiCreds struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// OrderResponse is the /order endpoint response
type OrderResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorMsg"`
	OrderID   string `json:"orderID"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CLOBClient handles authenticated trading on the Polymarket CLOB
type CLOBClient struct {
	baseURL       string
	apiKey        string
	apiSecret     string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       common.Address // signing address
	funderAddress common.Address // holds funds; differs from signer for proxy wallets
	httpClient    *http.Client
	signatureType int // 0=EOA, 1=Magic/Email, 2=Proxy
}

// NewCLOBClient creates an authenticated trading client.
// If apiKey/apiSecret are empty but walletPrivateKey is provided, the
// credentials are derived from the wallet via the auth endpoints.
func NewCLOBClient(baseURL, apiKey, apiSecret, passphrase, walletPrivateKey, signerAddress, funderAddress string, signatureType int) (*CLOBClient, error) {
	client := &CLOBClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		passphrase:    passphrase,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		signatureType: signatureType,
	}

	if signerAddress != "" {
		client.address = common.HexToAddress(signerAddress)
	}
	if funderAddress != "" {
		client.funderAddress = common.HexToAddress(funderAddress)
	}

	if walletPrivateKey != "" {
		if len(walletPrivateKey) > 2 && walletPrivateKey[:2] == "0x" {
			walletPrivateKey = walletPrivateKey[2:]
		}
		pk, err := crypto.HexToECDSA(walletPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		client.privateKey = pk
		client.address = crypto.PubkeyToAddress(pk.PublicKey)

		if funderAddress != "" {
			log.Info().
				Str("signer", client.address.Hex()).
				Str("funder", client.funderAddress.Hex()).
				Int("sig_type", signatureType).
				Msg("Wallet loaded (proxy mode)")
		} else {
			client.funderAddress = client.address
			log.Info().Str("address", client.address.Hex()).Msg("Wallet loaded")
		}

		if apiKey == "" || apiSecret == "" {
			log.Info().Msg("Deriving API credentials from wallet...")
			creds, err := client.deriveApiCreds()
			if err != nil {
				return nil, fmt.Errorf("failed to derive API credentials: %w", err)
			}
			client.apiKey = creds.ApiKey
			client.apiSecret = creds.Secret
			client.passphrase = creds.Passphrase
			log.Info().Str("api_key", creds.ApiKey[:20]+"...").Msg("API credentials derived")
		}
	} else if apiKey != "" && apiSecret != "" {
		log.Info().
			Str("signer", signerAddress).
			Str("funder", funderAddress).
			Msg("CLOB client with pre-derived credentials")
	}

	if client.apiKey == "" || client.apiSecret == "" {
		return nil, fmt.Errorf("wallet private key required (add WALLET_PRIVATE_KEY to .env)")
	}
	if client.address == (common.Address{}) {
		return nil, fmt.Errorf("signer address required (add SIGNER_ADDRESS to .env)")
	}

	return client, nil
}

// CollateralBalance returns the USDC balance in whole units
func (c *CLOBClient) CollateralBalance() (decimal.Decimal, error) {
	raw, err := c.balanceAllowance("COLLATERAL", "")
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(raw).Div(decimal.NewFromInt(TokenDecimals)), nil
}

// BalanceRaw returns the outcome-token balance in raw 6-decimal units.
// Fill detection compares raw balances directly so the dust threshold
// stays an integer comparison.
func (c *CLOBClient) BalanceRaw(tokenID string) (int64, error) {
	return c.balanceAllowance("CONDITIONAL", tokenID)
}

func (c *CLOBClient) balanceAllowance(assetType, tokenID string) (int64, error) {
	endpoint := "/balance-allowance"

	url := fmt.Sprintf("%s%s?asset_type=%s&signature_type=%d", c.baseURL, endpoint, assetType, c.signatureType)
	if tokenID != "" {
		url += "&token_id=" + tokenID
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return 0, err
	}

	c.signL2Request(req, "GET", endpoint, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("parse error: %w, body: %s", err, string(body))
	}

	balance, err := strconv.ParseInt(result.Balance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid balance value: %s", result.Balance)
	}

	return balance, nil
}

// PlaceLimitOrder signs and submits a limit order at the given price,
// rounded to the 0.01 tick, and returns the order ID. orderType is
// FOK, FAK, or GTC; entries use GTC so the order can rest while the
// balance poller watches for the fill.
func (c *CLOBClient) PlaceLimitOrder(tokenID, side string, price, size decimal.Decimal, orderType string) (string, error) {
	sideInt := SideBuy
	if side == "SELL" {
		sideInt = SideSell
	}

	price = price.Round(2)
	tick := decimal.NewFromFloat(0.01)
	if price.LessThan(tick) {
		price = tick
	}

	signer := NewOrderSigner(c.privateKey, c.address, c.funderAddress, c.signatureType)
	signedOrder, err := signer.CreateSignedOrder(tokenID, sideInt, price, size)
	if err != nil {
		return "", fmt.Errorf("failed to sign order: %w", err)
	}

	resp, err := c.submitSignedOrder(signedOrder, orderType)
	if err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("no order ID returned: %s", resp.Message)
	}

	log.Info().
		Str("order_id", resp.OrderID).
		Str("side", side).
		Str("price", price.String()).
		Str("size", size.String()).
		Str("type", orderType).
		Msg("Order placed")

	return resp.OrderID, nil
}

func (c *CLOBClient) submitSignedOrder(signedOrder *SignedCTFOrder, orderType string) (*OrderResponse, error) {
	payload := signedOrder.ToAPIPayload(c.apiKey, orderType)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	c.signL2Request(req, "POST", "/order", body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	log.Debug().
		Int("status", resp.StatusCode).
		RawJSON("response", respBody).
		Msg("CLOB order response")

	var orderResp OrderResponse
	if err := json.Unmarshal(respBody, &orderResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &orderResp, fmt.Errorf("order failed: %s - %s", orderResp.ErrorCode, orderResp.Message)
	}

	return &orderResp, nil
}

// CancelOrder cancels an open order. Cancelling an already-filled
// order returns an error the callers treat as non-fatal.
func (c *CLOBClient) CancelOrder(orderID string) error {
	body := []byte(fmt.Sprintf(`{"orderID":"%s"}`, orderID))

	req, err := http.NewRequest("DELETE", c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return err
	}

	c.signL2Request(req, "DELETE", "/order", body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel failed: %s", string(respBody))
	}

	return nil
}

// TestConnection verifies API connectivity
func (c *CLOBClient) TestConnection() error {
	req, err := http.NewRequest("GET", c.baseURL+"/time", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return nil
}

// Address returns the signing address
func (c *CLOBClient) Address() common.Address {
	return c.address
}

// signL2Request adds Level 2 authentication headers.
// Message and encoding must match py-clob-client's hmac signing:
// timestamp + method + path + body, URL-safe base64 both ways.
func (c *CLOBClient) signL2Request(req *http.Request, method, path string, body []byte) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	message := timestamp + method + path
	if len(body) > 0 {
		message += string(body)
	}

	secretBytes, err := base64.URLEncoding.DecodeString(c.apiSecret)
	if err != nil {
		padded := c.apiSecret
		if len(padded)%4 != 0 {
			padded += strings.Repeat("=", 4-len(padded)%4)
		}
		secretBytes, err = base64.URLEncoding.DecodeString(padded)
		if err != nil {
			secretBytes, _ = base64.StdEncoding.DecodeString(c.apiSecret)
		}
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(message))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	// Polymarket headers use underscores, not hyphens
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)

	// POLY_ADDRESS is the signer, not the funder
	if c.address != (common.Address{}) {
		req.Header.Set("POLY_ADDRESS", c.address.Hex())
	}
}

// deriveApiCreds derives API credentials by signing the CLOB auth
// message with the wallet key
func (c *CLOBClient) deriveApiCreds() (*ApiCreds, error) {
	if c.privateKey == nil {
		return nil, fmt.Errorf("wallet private key required")
	}
	return c.createOrDeriveCreds()
}

func (c *CLOBClient) createOrDeriveCreds() (*ApiCreds, error) {
	timestamp := time.Now().Unix()
	nonce := int64(0)

	signature, err := c.signClobAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to sign auth message: %w", err)
	}

	// L1 headers use the funder address (where funds are held)
	polyAddress := c.funderAddress.Hex()
	if c.funderAddress == (common.Address{}) {
		polyAddress = c.address.Hex()
	}

	headers := map[string]string{
		"POLY_ADDRESS":   polyAddress,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}

	// Derive existing credentials first
	req, _ := http.NewRequest("GET", c.baseURL+"/auth/derive-api-key", nil)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("derive request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusOK {
		var creds ApiCreds
		if err := json.Unmarshal(body, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return &creds, nil
	}

	// No existing credentials: create new ones
	req, _ = http.NewRequest("POST", c.baseURL+"/auth/api-key", nil)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ = io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var creds ApiCreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return &creds, nil
}

// signClobAuthMessage signs the CLOB authentication message with
// EIP-712. Domain: {name: "ClobAuthDomain", version: "1", chainId: 137}.
func (c *CLOBClient) signClobAuthMessage(timestamp, nonce int64) (string, error) {
	domainTypeHash := crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))

	nameHash := crypto.Keccak256Hash([]byte("ClobAuthDomain"))
	versionHash := crypto.Keccak256Hash([]byte("1"))
	chainID := big.NewInt(PolygonChainID)

	domainSeparator := crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		nameHash.Bytes(),
		versionHash.Bytes(),
		common.LeftPadBytes(chainID.Bytes(), 32),
	)

	clobAuthTypeHash := crypto.Keccak256Hash([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))

	// The auth message carries the funder address
	authAddress := c.funderAddress
	if authAddress == (common.Address{}) {
		authAddress = c.address
	}

	timestampStr := strconv.FormatInt(timestamp, 10)
	messageStr := "This message attests that I control the given wallet"

	structHash := crypto.Keccak256Hash(
		clobAuthTypeHash.Bytes(),
		common.LeftPadBytes(authAddress.Bytes(), 32),
		crypto.Keccak256Hash([]byte(timestampStr)).Bytes(),
		common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32),
		crypto.Keccak256Hash([]byte(messageStr)).Bytes(),
	)

	rawData := append([]byte{0x19, 0x01}, domainSeparator.Bytes()...)
	rawData = append(rawData, structHash.Bytes()...)
	hash := crypto.Keccak256Hash(rawData)

	sig, err := crypto.Sign(hash.Bytes(), c.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}
