package keyring

// MockStore is an in-memory Store for tests. Errors can be injected per
// operation.
type MockStore struct {
	data   map[string]string
	getErr error
	setErr error
	delErr error
}

// NewMockStore creates a new mock keyring store for testing.
func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]string),
	}
}

// Get retrieves a secret from the mock store.
func (m *MockStore) Get(service, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[mockKey(service, key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores a secret in the mock store.
func (m *MockStore) Set(service, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[mockKey(service, key)] = value
	return nil
}

// Delete removes a secret from the mock store.
func (m *MockStore) Delete(service, key string) error {
	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, mockKey(service, key))
	return nil
}

// WithGetError configures the mock to return an error on Get calls.
func (m *MockStore) WithGetError(err error) *MockStore {
	m.getErr = err
	return m
}

// WithSetError configures the mock to return an error on Set calls.
func (m *MockStore) WithSetError(err error) *MockStore {
	m.setErr = err
	return m
}

// WithDeleteError configures the mock to return an error on Delete calls.
func (m *MockStore) WithDeleteError(err error) *MockStore {
	m.delErr = err
	return m
}

// WithData pre-populates the mock store with a secret.
func (m *MockStore) WithData(service, key, value string) *MockStore {
	m.data[mockKey(service, key)] = value
	return m
}

// WithCredentials pre-populates all four brokerage credentials.
func (m *MockStore) WithCredentials(consumerKey, consumerSecret, accessToken, accessTokenSecret string) *MockStore {
	return m.WithData(ServiceName, KeyConsumerKey, consumerKey).
		WithData(ServiceName, KeyConsumerSecret, consumerSecret).
		WithData(ServiceName, KeyAccessToken, accessToken).
		WithData(ServiceName, KeyAccessTokenSecret, accessTokenSecret)
}

func mockKey(service, key string) string {
	return service + ":" + key
}
