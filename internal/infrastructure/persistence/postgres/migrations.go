package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE BADGES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Achievement reference data, maintained by administrators
CREATE TABLE IF NOT EXISTS badge_definitions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    slug VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(120) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    icon VARCHAR(64) NOT NULL DEFAULT '',
    category VARCHAR(64) NOT NULL DEFAULT 'participation',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- One row per (user, badge, scope). scope_key is 'global', 'room:none'
-- or 'room:<uuid>'; room_id mirrors the uuid for joins.
CREATE TABLE IF NOT EXISTS user_badges (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    badge_id UUID NOT NULL REFERENCES badge_definitions(id) ON DELETE CASCADE,
    room_id UUID,
    scope_key VARCHAR(64) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    earned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT user_badges_unique_scope UNIQUE (user_id, badge_id, scope_key),
    CONSTRAINT valid_scope_key CHECK (scope_key = 'global' OR scope_key LIKE 'room:%')
);

CREATE INDEX IF NOT EXISTS idx_user_badges_user_earned ON user_badges(user_id, earned_at DESC);
CREATE INDEX IF NOT EXISTS idx_user_badges_room ON user_badges(room_id) WHERE room_id IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS badge_definitions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: SEED BADGE DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
INSERT INTO badge_definitions (slug, name, description, icon, category) VALUES
    ('first_contribution',      'First Contribution',   'Made a first contribution in a tutoring session', 'sparkles',       'participation'),
    ('active_contributor_10',   'Active Contributor',   'Made 10 contributions',                           'message-circle', 'participation'),
    ('prolific_contributor_50', 'Prolific Contributor', 'Made 50 contributions',                           'flame',          'participation'),
    ('chat_enthusiast_20',      'Chat Enthusiast',      'Sent 20 chat messages',                           'messages-square','collaboration'),
    ('consistent_presence_5',   'Consistent Presence',  'Took part in 5 different sessions',               'calendar-check', 'participation'),
    ('dedicated_learner_10',    'Dedicated Learner',    'Took part in 10 different sessions',              'graduation-cap', 'participation'),
    ('coordinator_star',        'Coordinator',          'Coordinated a tutoring session',                  'crown',          'leadership'),
    ('reporter_star',           'Reporter',             'Served as the session reporter',                  'pen-line',       'leadership'),
    ('peer_evaluator_5',        'Peer Evaluator',       'Evaluated 5 peers',                               'users',          'collaboration'),
    ('reference_sharer_3',      'Reference Sharer',     'Shared 3 references',                             'book-open',      'collaboration'),
    ('top_performer',           'Top Performer',        'At least 60% of grades in the top tier',          'trophy',         'achievement'),
    ('improvement_streak',      'On the Rise',          'Recent grades clearly above earlier ones',        'trending-up',    'achievement')
ON CONFLICT (slug) DO NOTHING;
`

const migration002Down = `
DELETE FROM badge_definitions WHERE slug IN (
    'first_contribution', 'active_contributor_10', 'prolific_contributor_50',
    'chat_enthusiast_20', 'consistent_presence_5', 'dedicated_learner_10',
    'coordinator_star', 'reporter_star', 'peer_evaluator_5',
    'reference_sharer_3', 'top_performer', 'improvement_streak'
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACTIVITY TABLES
// These belong to the tutoring platform. IF NOT EXISTS keeps the migration
// harmless on a database where the platform already created them.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS tutorial_sessions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    room_id UUID,
    coordinator_id UUID,
    reporter_id UUID,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS session_contributions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    session_id UUID NOT NULL,
    room_id UUID,
    content TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    room_id UUID,
    content TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS peer_evaluations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    evaluator_id UUID NOT NULL,
    evaluated_id UUID NOT NULL,
    room_id UUID,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS session_references (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    session_id UUID,
    url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS evaluations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL,
    room_id UUID,
    grade VARCHAR(8),
    is_archived BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_session_contributions_user ON session_contributions(user_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id);
CREATE INDEX IF NOT EXISTS idx_tutorial_sessions_coordinator ON tutorial_sessions(coordinator_id);
CREATE INDEX IF NOT EXISTS idx_tutorial_sessions_reporter ON tutorial_sessions(reporter_id);
CREATE INDEX IF NOT EXISTS idx_peer_evaluations_evaluator ON peer_evaluations(evaluator_id);
CREATE INDEX IF NOT EXISTS idx_session_references_user ON session_references(user_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_student ON evaluations(student_id, created_at) WHERE is_archived = FALSE;
`

// Activity tables are left in place: dropping them could destroy platform data.
const migration003Down = `
SELECT 1;
`
