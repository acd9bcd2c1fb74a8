package db

import (
	"fmt"
	"log"

	"github.com/techagentng/spotchat/config"
	"github.com/techagentng/spotchat/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	DB *gorm.DB
}

func GetDB(c *config.Config) *GormDB {
	gormDB := &GormDB{}
	gormDB.Init(c)
	return gormDB
}

func (g *GormDB) Init(c *config.Config) {
	g.DB = getPostgresDB(c)

	if err := migrate(g.DB); err != nil {
		log.Fatalf("unable to run migrations: %v", err)
	}
}

func getPostgresDB(c *config.Config) *gorm.DB {
	log.Printf("Connecting to postgres: host=%s db=%s port=%d", c.PostgresHost, c.PostgresDB, c.PostgresPort)
	postgresDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresTimeZone)

	gormConfig := &gorm.Config{}
	if c.Env != "prod" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN: postgresDSN,
	}), gormConfig)
	if err != nil {
		log.Fatal(err)
	}

	return gormDB
}

// directConversationProcedure finds or creates the direct conversation of a user pair in one
// statement and reports whether this call inserted it. The unique direct_key index makes
// concurrent callers converge on one row.
const directConversationProcedure = `
CREATE OR REPLACE FUNCTION get_or_create_direct_conversation(user_a uuid, user_b uuid)
RETURNS TABLE(convo uuid, created boolean) AS $$
DECLARE
	pair_key text := LEAST(user_a::text COLLATE "C", user_b::text COLLATE "C") || ':' ||
	                 GREATEST(user_a::text COLLATE "C", user_b::text COLLATE "C");
	convo_id uuid;
BEGIN
	IF user_a = user_b THEN
		RAISE EXCEPTION 'direct conversation needs two distinct users' USING ERRCODE = '22023';
	END IF;

	SELECT c.id INTO convo_id FROM conversations c WHERE c.direct_key = pair_key;
	IF convo_id IS NOT NULL THEN
		RETURN QUERY SELECT convo_id, false;
		RETURN;
	END IF;

	INSERT INTO conversations (id, is_group, direct_key, created_by, created_at, last_message_at)
	VALUES (gen_random_uuid(), false, pair_key, user_a, now(), now())
	ON CONFLICT (direct_key) DO NOTHING
	RETURNING id INTO convo_id;

	IF convo_id IS NULL THEN
		SELECT c.id INTO convo_id FROM conversations c WHERE c.direct_key = pair_key;
		RETURN QUERY SELECT convo_id, false;
		RETURN;
	END IF;

	INSERT INTO participants (id, conversation_id, user_id, role, status, unread_count, joined_at)
	VALUES (gen_random_uuid(), convo_id, user_a, 'admin', 'accepted', 0, now()),
	       (gen_random_uuid(), convo_id, user_b, 'member', 'accepted', 0, now());
	RETURN QUERY SELECT convo_id, true;
END;
$$ LANGUAGE plpgsql;`

// messageInsertTrigger keeps last_message_at monotonic and bumps the unread counter of every
// recipient that has not rejected the conversation.
const messageInsertTrigger = `
CREATE OR REPLACE FUNCTION on_message_inserted() RETURNS trigger AS $$
BEGIN
	UPDATE conversations
	   SET last_message_at = GREATEST(last_message_at, NEW.created_at)
	 WHERE id = NEW.conversation_id;

	UPDATE participants
	   SET unread_count = unread_count + 1
	 WHERE conversation_id = NEW.conversation_id
	   AND user_id <> NEW.sender_id
	   AND status <> 'rejected';
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

const messageInsertTriggerBinding = `
CREATE TRIGGER messages_after_insert
	AFTER INSERT ON messages
	FOR EACH ROW EXECUTE FUNCTION on_message_inserted();`

func migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("migrations error: %v", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Participant{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("migrations error: %v", err)
	}

	// the return type changed from a bare uuid, which CREATE OR REPLACE cannot alter
	for _, stmt := range []string{
		`DROP FUNCTION IF EXISTS get_or_create_direct_conversation(uuid, uuid)`,
		directConversationProcedure,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("creating direct conversation procedure: %v", err)
		}
	}
	for _, stmt := range []string{
		messageInsertTrigger,
		`DROP TRIGGER IF EXISTS messages_after_insert ON messages`,
		messageInsertTriggerBinding,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("creating message trigger: %v", err)
		}
	}

	return nil
}
