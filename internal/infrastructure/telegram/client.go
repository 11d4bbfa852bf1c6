package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// ClientFactory is a function type for creating userbot clients
type ClientFactory func(cfg ClientConfig) (domain.UserbotClient, error)

// ClientConfig holds configuration for MTProtoClient
type ClientConfig struct {
	APIID        int
	APIHash      string
	SessionToken string // empty for the login flow's unauthenticated connection
	Logger       zerolog.Logger
}

// MTProtoClient implements domain.UserbotClient using gotd/td
type MTProtoClient struct {
	client *telegram.Client

	apiID   int
	apiHash string

	sessionStorage *MemorySessionStorage

	// Connection state
	connected     bool
	disconnecting bool
	mu            sync.RWMutex
	cancelFunc    context.CancelFunc
	runDone       chan struct{} // Signals when client.Run() completes

	logger zerolog.Logger

	// API client for making requests
	api *tg.Client

	// Rate limiter for API calls
	rateLimiter *rate.Limiter
}

// NewMTProtoClient creates a new MTProto client instance
func NewMTProtoClient(cfg ClientConfig) (*MTProtoClient, error) {
	if cfg.APIID == 0 {
		return nil, fmt.Errorf("APIID is required")
	}
	if cfg.APIHash == "" {
		return nil, fmt.Errorf("APIHash is required")
	}

	sessionData, err := DecodeSessionToken(cfg.SessionToken)
	if err != nil {
		return nil, err
	}

	return &MTProtoClient{
		apiID:          cfg.APIID,
		apiHash:        cfg.APIHash,
		sessionStorage: NewMemorySessionStorage(sessionData),
		logger:         cfg.Logger.With().Str("component", "mtproto_client").Logger(),
		rateLimiter:    rate.NewLimiter(rate.Every(time.Second), 10), // 10 requests per second
	}, nil
}

// DefaultClientFactory creates real MTProtoClient instances
func DefaultClientFactory(cfg ClientConfig) (domain.UserbotClient, error) {
	return NewMTProtoClient(cfg)
}

// Connect connects to Telegram using MTProto. It does not sign in: the
// caller decides, after checking IsAuthorized, whether to use the
// connection as-is or to route the operator into the login flow.
func (c *MTProtoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already connected")
		return nil
	}
	if c.disconnecting {
		c.mu.Unlock()
		return fmt.Errorf("disconnect in progress, cannot connect")
	}
	// Keep the lock to prevent concurrent connection attempts
	defer c.mu.Unlock()

	c.logger.Info().Msg("connecting to Telegram")

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: c.sessionStorage,
		Device: telegram.DeviceConfig{
			DeviceModel:   "iPhone 14 Pro Max",
			SystemVersion: "16.5.1",
			AppVersion:    "9.6.3",
			LangCode:      "en",
		},
	})

	// Create cancellable context for client lifecycle
	clientCtx, cancel := context.WithCancel(context.Background())
	c.cancelFunc = cancel

	readyChan := make(chan *tg.Client, 1)
	errChan := make(chan error, 1)
	started := make(chan struct{})
	runDone := make(chan struct{})
	c.runDone = runDone

	// Start the client in a goroutine. Connect holds c.mu until it
	// returns, so the callback hands the API client over readyChan and
	// Connect stores it under the lock it already owns.
	go func() {
		defer close(runDone) // Signal when Run() completes
		close(started)
		err := c.client.Run(clientCtx, func(ctx context.Context) error {
			select {
			case readyChan <- c.client.API():
			default:
			}

			// Keep connection alive
			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case errChan <- err:
		default:
		}

		// Run has exited, so the transport is gone no matter how it
		// ended. Stop reporting the connection as live.
		c.mu.Lock()
		c.connected = false
		c.api = nil
		c.mu.Unlock()
	}()

	// Ensure goroutine has started
	<-started

	// Wait for connection to be fully ready or error
	select {
	case api := <-readyChan:
		c.api = api
		c.connected = true
		c.logger.Info().Msg("connected to Telegram")
		return nil
	case err := <-errChan:
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %s", domain.ErrConnectionFailed, err)
		}
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Close disconnects from Telegram with graceful shutdown. The session is
// saved by the underlying gotd client before shutdown. Multiple calls
// are safe and return nil if already disconnected.
func (c *MTProtoClient) Close(ctx context.Context) error {
	c.mu.Lock()

	if c.disconnecting {
		c.mu.Unlock()
		c.logger.Debug().Msg("disconnect already in progress")
		return nil
	}

	if !c.connected {
		c.mu.Unlock()
		c.logger.Debug().Msg("already disconnected")
		return nil
	}

	c.logger.Info().Msg("disconnecting from Telegram")

	c.disconnecting = true
	cancelFunc := c.cancelFunc
	runDone := c.runDone
	c.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()

		// Wait for client.Run() goroutine to actually finish
		if runDone != nil {
			select {
			case <-runDone:
				c.logger.Debug().Msg("client stopped gracefully")
			case <-ctx.Done():
				c.logger.Warn().Msg("disconnect timeout reached while waiting for client shutdown")
			}
		}
	}

	c.mu.Lock()
	c.client = nil
	c.api = nil
	c.connected = false
	c.cancelFunc = nil
	c.runDone = nil
	c.disconnecting = false
	c.mu.Unlock()

	c.logger.Info().Msg("disconnected from Telegram")
	return nil
}

// IsConnected checks if client is connected to Telegram
func (c *MTProtoClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsAuthorized checks whether the current session is signed in
func (c *MTProtoClient) IsAuthorized(ctx context.Context) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}

	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, decodeError(err)
	}
	return status.Authorized, nil
}

// RequestLoginCode asks Telegram to send a login code to the phone and
// returns the phone-code hash needed to complete sign-in.
func (c *MTProtoClient) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", decodeError(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("unexpected sent code type %T", sent)
	}

	return code.PhoneCodeHash, nil
}

// SignInWithCode completes sign-in with the received code
func (c *MTProtoClient) SignInWithCode(ctx context.Context, phone, code, codeHash string) error {
	if err := c.ready(); err != nil {
		return err
	}

	if _, err := c.client.Auth().SignIn(ctx, phone, code, codeHash); err != nil {
		return decodeError(err)
	}
	return nil
}

// SignInWithPassword completes 2FA sign-in with the cloud password
func (c *MTProtoClient) SignInWithPassword(ctx context.Context, password string) error {
	if err := c.ready(); err != nil {
		return err
	}

	if _, err := c.client.Auth().Password(ctx, password); err != nil {
		return decodeError(err)
	}
	return nil
}

// ExportSessionToken serializes the current session for persistence
func (c *MTProtoClient) ExportSessionToken(ctx context.Context) (string, error) {
	data := c.sessionStorage.Bytes()
	if len(data) == 0 {
		return "", fmt.Errorf("no session data to export")
	}
	return EncodeSessionToken(data), nil
}

// Me returns the account behind the authorized session
func (c *MTProtoClient) Me(ctx context.Context) (*domain.UserInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		return nil, decodeError(err)
	}

	return &domain.UserInfo{
		ID:        self.ID,
		Username:  self.Username,
		FirstName: self.FirstName,
	}, nil
}

// SendMessage delivers text to a peer: "@username" or a numeric chat ID.
// Numeric IDs address basic groups; channels and supergroups need the
// username form because their input peer requires an access hash.
func (c *MTProtoClient) SendMessage(ctx context.Context, peer, text string) error {
	if err := c.ready(); err != nil {
		return err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	sender := message.NewSender(c.api)

	if strings.HasPrefix(peer, "@") {
		if _, err := sender.Resolve(strings.TrimPrefix(peer, "@")).Text(ctx, text); err != nil {
			return decodeError(err)
		}
		return nil
	}

	chatID, err := strconv.ParseInt(peer, 10, 64)
	if err != nil {
		return fmt.Errorf("peer must be @username or a numeric chat ID: %q", peer)
	}

	if _, err := sender.To(&tg.InputPeerChat{ChatID: chatID}).Text(ctx, text); err != nil {
		return decodeError(err)
	}
	return nil
}

// JoinChat joins a chat by public username/link or private invite link
func (c *MTProtoClient) JoinChat(ctx context.Context, link string) error {
	if err := c.ready(); err != nil {
		return err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	c.logger.Info().Str("link", link).Msg("joining chat")

	if hash, ok := inviteHash(link); ok {
		if _, err := c.api.MessagesImportChatInvite(ctx, hash); err != nil {
			return decodeError(err)
		}
		return nil
	}

	channel, err := c.resolveChannel(ctx, link)
	if err != nil {
		return err
	}

	// Membership pre-check keeps the join idempotent for public chats
	_, err = c.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     channel,
		Participant: &tg.InputPeerSelf{},
	})
	if err == nil {
		return domain.ErrAlreadyParticipant
	}

	if _, err := c.api.ChannelsJoinChannel(ctx, channel); err != nil {
		return decodeError(err)
	}
	return nil
}

// ListDialogs returns up to limit of the account's group and channel dialogs
func (c *MTProtoClient) ListDialogs(ctx context.Context, limit int) ([]domain.ChatInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	result, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, decodeError(err)
	}

	var chats []tg.ChatClass
	switch dialogs := result.(type) {
	case *tg.MessagesDialogs:
		chats = dialogs.Chats
	case *tg.MessagesDialogsSlice:
		chats = dialogs.Chats
	default:
		return nil, nil
	}

	infos := make([]domain.ChatInfo, 0, len(chats))
	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Chat:
			infos = append(infos, domain.ChatInfo{ID: ch.ID, Title: ch.Title})
		case *tg.Channel:
			infos = append(infos, domain.ChatInfo{ID: ch.ID, Title: ch.Title})
		}
	}

	return infos, nil
}

// ready reports whether API calls can be made on this client
func (c *MTProtoClient) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.api == nil {
		return domain.ErrNotConnected
	}
	return nil
}

// resolveChannel resolves "@username", "username" or a t.me link to an
// input channel. Numeric IDs are not supported here: they require an
// access hash that only resolution can provide.
func (c *MTProtoClient) resolveChannel(ctx context.Context, link string) (*tg.InputChannel, error) {
	username := link
	if idx := strings.LastIndex(username, "/"); idx >= 0 {
		username = username[idx+1:]
	}
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return nil, domain.ErrInvalidInvite
	}

	resolved, err := c.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		c.logger.Error().Err(err).Str("link", link).Msg("failed to resolve chat")
		return nil, decodeError(err)
	}

	for _, chat := range resolved.Chats {
		if channel, ok := chat.(*tg.Channel); ok {
			return &tg.InputChannel{
				ChannelID:  channel.ID,
				AccessHash: channel.AccessHash,
			}, nil
		}
	}

	return nil, fmt.Errorf("resolved peer is not a channel")
}

// inviteHash extracts the invite hash from a private invite link
// (t.me/+HASH or t.me/joinchat/HASH).
func inviteHash(link string) (string, bool) {
	switch {
	case strings.Contains(link, "t.me/+"):
		parts := strings.SplitN(link, "t.me/+", 2)
		return parts[1], parts[1] != ""
	case strings.Contains(link, "t.me/joinchat/"):
		parts := strings.SplitN(link, "t.me/joinchat/", 2)
		return parts[1], parts[1] != ""
	}
	return "", false
}

// Ensure MTProtoClient implements domain.UserbotClient interface
var _ domain.UserbotClient = (*MTProtoClient)(nil)
