package sqlite

// Timestamps are fixed-width UTC TEXT (see time.go) so range filters compare
// lexicographically. Rate limit windows are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS customers (
    id          TEXT PRIMARY KEY,
    email       TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email);

CREATE TABLE IF NOT EXISTS products (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    -- Mirror of the sum of the variants; may drift, see ReconcileProducts.
    inventory_quantity  INTEGER NOT NULL DEFAULT 0 CHECK (inventory_quantity >= 0)
);

CREATE TABLE IF NOT EXISTS variants (
    id                  TEXT PRIMARY KEY,
    product_id          TEXT NOT NULL REFERENCES products(id),
    sku                 TEXT NOT NULL DEFAULT '',
    inventory_quantity  INTEGER NOT NULL DEFAULT 0 CHECK (inventory_quantity >= 0)
);
CREATE INDEX IF NOT EXISTS idx_variants_product ON variants(product_id);

CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL DEFAULT '',
    customer_email  TEXT NOT NULL DEFAULT '',
    customer_name   TEXT NOT NULL DEFAULT '',
    customer_phone  TEXT NOT NULL DEFAULT '',
    total           TEXT NOT NULL,
    status          TEXT NOT NULL,
    payment_status  TEXT NOT NULL DEFAULT 'unpaid',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(customer_email, created_at);

CREATE TABLE IF NOT EXISTS order_items (
    id          TEXT PRIMARY KEY,
    order_id    TEXT NOT NULL REFERENCES orders(id),
    variant_id  TEXT NOT NULL DEFAULT '',
    product_id  TEXT NOT NULL DEFAULT '',
    quantity    INTEGER NOT NULL CHECK (quantity > 0),
    unit_price  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

CREATE TABLE IF NOT EXISTS payment_attempts (
    id              TEXT PRIMARY KEY,
    order_id        TEXT NOT NULL,
    customer_id     TEXT NOT NULL DEFAULT '',
    customer_email  TEXT NOT NULL DEFAULT '',
    amount          TEXT NOT NULL,
    currency        TEXT NOT NULL DEFAULT '',
    method          TEXT NOT NULL,
    ip_address      TEXT NOT NULL DEFAULT '',
    user_agent      TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    transaction_id  TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_ip ON payment_attempts(ip_address, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_customer ON payment_attempts(customer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attempts_tx ON payment_attempts(transaction_id);
CREATE INDEX IF NOT EXISTS idx_attempts_ua ON payment_attempts(user_agent, status);

CREATE TABLE IF NOT EXISTS rate_limits (
    identifier_type   TEXT    NOT NULL,
    identifier_value  TEXT    NOT NULL,
    count             INTEGER NOT NULL,
    window_start      INTEGER NOT NULL,
    window_end        INTEGER NOT NULL,
    is_blocked        INTEGER NOT NULL DEFAULT 0,
    blocked_until     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (identifier_type, identifier_value)
);

CREATE TABLE IF NOT EXISTS fraud_rules (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    rule_type   TEXT NOT NULL,
    conditions  TEXT NOT NULL,
    action      TEXT NOT NULL,
    priority    INTEGER NOT NULL DEFAULT 100,
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fraud_rules_active ON fraud_rules(is_active, priority);

CREATE TABLE IF NOT EXISTS security_events (
    id           TEXT PRIMARY KEY,
    event_type   TEXT NOT NULL,
    severity     TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    details      TEXT NOT NULL DEFAULT '{}',
    actor_id     TEXT NOT NULL DEFAULT '',
    ip_address   TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'open',
    created_at   TEXT NOT NULL,
    resolved_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_security_events_ip ON security_events(ip_address, created_at);
CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type, created_at);
`
